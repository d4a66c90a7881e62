package delivery

import (
	"context"
	"time"

	"github.com/mosaicnetworks/herald/src/auth"
	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/friends"
	"github.com/mosaicnetworks/herald/src/messages"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/mosaicnetworks/herald/src/objects"
	"github.com/mosaicnetworks/herald/src/retry"
	"github.com/sirupsen/logrus"
)

// DefaultCatchUpBatch is the number of envelopes read per catch-up step.
const DefaultCatchUpBatch = 50

// SessionSource finds the live session of an identity. *auth.Auth
// implements it.
type SessionSource interface {
	GetLiveSessionByPermalink(ctx context.Context, permalink string) (*auth.Session, error)
}

// Request asks for envelopes to be delivered to a recipient.
type Request struct {
	Recipient string
	ClientID  string
	Endpoint  string
	Messages  []object.Object
}

func (r Request) target() Target {
	return Target{
		Recipient: r.Recipient,
		ClientID:  r.ClientID,
		Endpoint:  r.Endpoint,
	}
}

// SelectorConfig ...
type SelectorConfig struct {
	CatchUpBatch int
	// MinBudget is the time a catch-up step needs before the caller's
	// deadline.
	MinBudget time.Duration
}

// Selector chooses a transport for every delivery.
type Selector struct {
	push     Transport
	pull     Transport
	sessions SessionSource
	friends  friends.Directory
	seq      *messages.Sequencer
	objects  *objects.Store
	conf     SelectorConfig
	logger   *logrus.Entry
}

// NewSelector returns a Selector. push may be nil when no push realm is
// configured, in which case every delivery goes through pull.
func NewSelector(
	push Transport,
	pull Transport,
	sessions SessionSource,
	friendDir friends.Directory,
	seq *messages.Sequencer,
	objs *objects.Store,
	conf SelectorConfig,
	logger *logrus.Entry,
) *Selector {
	if conf.CatchUpBatch <= 0 {
		conf.CatchUpBatch = DefaultCatchUpBatch
	}
	return &Selector{
		push:     push,
		pull:     pull,
		sessions: sessions,
		friends:  friendDir,
		seq:      seq,
		objects:  objs,
		conf:     conf,
		logger:   logger,
	}
}

func notDeliverable(recipient string) error {
	return common.Errorf("Recipient", common.NotFound, recipient, "no live session and no known endpoint")
}

// Resolve picks the transport for target. A client id means push, an
// endpoint means pull. Otherwise the recipient's friend provider is looked
// up, and its inbox becomes the endpoint.
func (s *Selector) Resolve(ctx context.Context, target Target) (Transport, Target, error) {
	if target.ClientID != "" && s.push != nil {
		return s.push, target, nil
	}

	if s.pull == nil {
		return nil, target, notDeliverable(target.Recipient)
	}

	if target.Endpoint != "" {
		return s.pull, target, nil
	}

	if s.friends == nil {
		return nil, target, notDeliverable(target.Recipient)
	}

	friend, err := s.friends.Resolve(ctx, target.Recipient)
	if err != nil {
		if common.Is(err, common.NotFound) {
			return nil, target, notDeliverable(target.Recipient)
		}
		return nil, target, err
	}

	target.Endpoint = friend.InboxURL()

	return s.pull, target, nil
}

// Deliver sends req.Messages through the transport chosen by Resolve.
func (s *Selector) Deliver(ctx context.Context, req Request) error {
	if len(req.Messages) == 0 {
		return nil
	}

	transport, target, err := s.Resolve(ctx, req.target())
	if err != nil {
		return err
	}

	if !transport.Capabilities().Has(CapDeliverBatch) {
		return common.Errorf("Transport", common.InvalidInput, transport.Name(), "cannot deliver batches")
	}

	s.logger.WithFields(logrus.Fields{
		"to":        req.Recipient,
		"transport": transport.Name(),
		"envelopes": len(req.Messages),
	}).Debug("Deliver")

	return transport.DeliverBatch(ctx, target, req.Messages)
}

// DeliverLive delivers freshly sequenced envelopes to the live session of
// recipient, or else to its friend provider.
func (s *Selector) DeliverLive(ctx context.Context, recipient string, envelopes []object.Object) error {
	req := Request{
		Recipient: recipient,
		Messages:  envelopes,
	}

	if s.sessions != nil {
		session, err := s.sessions.GetLiveSessionByPermalink(ctx, recipient)
		switch {
		case err == nil:
			req.ClientID = session.ClientID
		case !common.Is(err, common.NotFound):
			return err
		}
	}

	return s.Deliver(ctx, req)
}

// Ack acknowledges a message received from target, if its transport can.
func (s *Selector) Ack(ctx context.Context, target Target, link string) error {
	transport, target, err := s.Resolve(ctx, target)
	if err != nil {
		return err
	}

	if !transport.Capabilities().Has(CapAck) {
		return common.Errorf("Transport", common.InvalidInput, transport.Name(), "cannot ack")
	}

	return transport.Ack(ctx, target, link)
}

// Reject reports a refused message to target, if its transport can.
func (s *Selector) Reject(ctx context.Context, target Target, link string, reason error) error {
	transport, target, err := s.Resolve(ctx, target)
	if err != nil {
		return err
	}

	if !transport.Capabilities().Has(CapReject) {
		return common.Errorf("Transport", common.InvalidInput, transport.Name(), "cannot reject")
	}

	return transport.Reject(ctx, target, link, reason)
}

// CatchUp delivers every envelope sent to recipient after cursor, in bounded
// batches, and returns the cursor of the last delivered envelope. Remaining
// budget is checked before each batch; on failure the returned cursor is
// where the next sweep should resume.
func (s *Selector) CatchUp(ctx context.Context, recipient string, cursor messages.Cursor, target Target) (messages.Cursor, error) {
	target.Recipient = recipient

	transport, target, err := s.Resolve(ctx, target)
	if err != nil {
		return cursor, err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"to":        recipient,
		"transport": transport.Name(),
	})

	for {
		if err := retry.CheckBudget(ctx, s.conf.MinBudget); err != nil {
			logger.WithError(err).Debug("Catch-up out of budget")
			return cursor, err
		}

		stubs, next, err := s.seq.OutboundSince(ctx, recipient, cursor, s.conf.CatchUpBatch)
		if err != nil {
			return cursor, err
		}

		if len(stubs) == 0 {
			return cursor, nil
		}

		envelopes := make([]object.Object, 0, len(stubs))
		for _, stub := range stubs {
			e, err := s.loadEnvelope(ctx, stub.Link)
			if err != nil {
				logger.WithError(err).WithField("link", stub.Link).Error("Loading envelope")
				return cursor, err
			}
			envelopes = append(envelopes, e)
		}

		if err := transport.DeliverBatch(ctx, target, envelopes); err != nil {
			return cursor, err
		}

		logger.WithFields(logrus.Fields{
			"envelopes": len(envelopes),
			"seq":       next.Seq,
		}).Debug("Caught up batch")

		cursor = next

		if len(stubs) < s.conf.CatchUpBatch {
			return cursor, nil
		}
	}
}

// loadEnvelope returns a stored envelope with its payload embedded, as it
// travels on the wire.
func (s *Selector) loadEnvelope(ctx context.Context, link string) (object.Object, error) {
	envelope, err := s.objects.Get(ctx, link)
	if err != nil {
		return nil, err
	}

	payload, err := s.objects.Get(ctx, envelope.String(object.PayloadLinkField))
	if err != nil {
		return nil, err
	}

	envelope[object.EmbedField] = payload

	return envelope, nil
}
