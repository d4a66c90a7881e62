package provider

import (
	"context"

	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/crypto/keys"
	"github.com/mosaicnetworks/herald/src/identity"
	"github.com/mosaicnetworks/herald/src/messages"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/mosaicnetworks/herald/src/objects"
	"github.com/sirupsen/logrus"
)

// Deliverer attempts live delivery of freshly sequenced envelopes. Delivery
// is best-effort: envelopes stay in the recipient's outbound index whatever
// happens.
type Deliverer interface {
	DeliverLive(ctx context.Context, recipient string, envelopes []object.Object) error
}

// Provider builds, signs, sequences and validates message envelopes on behalf
// of one identity.
type Provider struct {
	conf *Config

	identity  object.Object
	permalink string
	signer    keys.Signer

	objects   *objects.Store
	directory *identity.Directory
	sequencer *messages.Sequencer
	deliverer Deliverer

	metrics *Metrics
	logger  *logrus.Entry
}

// NewProvider returns a Provider acting as self, which signs with signer.
// metrics may be nil.
func NewProvider(
	conf *Config,
	self object.Object,
	signer keys.Signer,
	objs *objects.Store,
	directory *identity.Directory,
	sequencer *messages.Sequencer,
	metrics *Metrics,
	logger *logrus.Entry,
) (*Provider, error) {
	if err := object.Stamp(self); err != nil {
		return nil, err
	}

	if _, ok := object.FindPubKey(self, signer.PublicKey().Pub); !ok {
		return nil, common.Errorf("Provider", common.InvalidInput, signer.PublicKey().Pub, "signer key is not listed by the identity")
	}

	permalink, err := object.Permalink(self)
	if err != nil {
		return nil, err
	}

	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Provider{
		conf:      conf,
		identity:  self,
		permalink: permalink,
		signer:    signer,
		objects:   objs,
		directory: directory,
		sequencer: sequencer,
		metrics:   metrics,
		logger:    logger.WithField("permalink", permalink),
	}, nil
}

// Bootstrap adds the provider's own identity to the directory, so that its
// own objects resolve like any other.
func (p *Provider) Bootstrap(ctx context.Context) error {
	return p.directory.AddContact(ctx, p.identity)
}

// SetDeliverer sets the live delivery collaborator of Send.
func (p *Provider) SetDeliverer(d Deliverer) {
	p.deliverer = d
}

// Identity returns the provider's identity document.
func (p *Provider) Identity() object.Object {
	return p.identity
}

// Permalink returns the permalink of the provider's identity.
func (p *Provider) Permalink() string {
	return p.permalink
}

// Directory ...
func (p *Provider) Directory() *identity.Directory {
	return p.directory
}

// Sequencer ...
func (p *Provider) Sequencer() *messages.Sequencer {
	return p.sequencer
}

// Objects ...
func (p *Provider) Objects() *objects.Store {
	return p.objects
}

// Metrics ...
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// SignObject signs o with the provider's key and stamps it with the
// provider's permalink as author.
func (p *Provider) SignObject(ctx context.Context, o object.Object) (object.Object, error) {
	signed, err := object.Sign(ctx, p.signer, o)
	if err != nil {
		return nil, err
	}
	signed[object.AuthorField] = p.permalink
	return signed, nil
}
