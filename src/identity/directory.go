package identity

import (
	"context"

	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/crypto/keys"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/mosaicnetworks/herald/src/objects"
	"github.com/mosaicnetworks/herald/src/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	pubKeyPrefix    = "pubkey_"
	permalinkPrefix = "permalink_"
)

func pubKeyKey(pub string) string {
	return pubKeyPrefix + pub
}

func permalinkKey(permalink string) string {
	return permalinkPrefix + permalink
}

// Directory maps public keys and permalinks to identity documents.
type Directory struct {
	kv      store.KV
	objects *objects.Store
	cache   Cache
	logger  *logrus.Entry
}

// NewDirectory returns a Directory. cache may be nil.
func NewDirectory(kv store.KV, objects *objects.Store, cache Cache, logger *logrus.Entry) *Directory {
	if cache == nil {
		cache = nopCache{}
	}
	return &Directory{
		kv:      kv,
		objects: objects,
		cache:   cache,
		logger:  logger,
	}
}

// GetByPub returns the mapping of a public key.
func (d *Directory) GetByPub(ctx context.Context, pub string) (Mapping, error) {
	if m, ok := d.cache.Get(pub); ok {
		return m, nil
	}

	data, err := d.kv.Get(ctx, pubKeyKey(pub))
	if err != nil {
		if common.Is(err, common.NotFound) {
			return Mapping{}, common.NewErr("PubKey", common.NotFound, pub)
		}
		return Mapping{}, err
	}

	var m Mapping
	if err := object.UnmarshalInto(data, &m); err != nil {
		d.logger.WithError(err).WithField("pub", pub).Error("Malformed pubkey mapping")
		return Mapping{}, err
	}

	d.cache.Add(m)

	return m, nil
}

// GetByPermalink returns the latest known revision of an identity.
func (d *Directory) GetByPermalink(ctx context.Context, permalink string) (object.Object, error) {
	link, err := d.kv.Get(ctx, permalinkKey(permalink))
	if err != nil {
		if common.Is(err, common.NotFound) {
			return nil, common.NewErr("Identity", common.NotFound, permalink)
		}
		return nil, err
	}

	return d.objects.Get(ctx, string(link))
}

// GetByLink returns one revision of an identity.
func (d *Directory) GetByLink(ctx context.Context, link string) (object.Object, error) {
	return d.objects.Get(ctx, link)
}

// AddContact stores an identity and indexes its keys. The document is written
// first, where nothing references it yet, then every key mapping and the
// permalink head are written in one atomic batch.
func (d *Directory) AddContact(ctx context.Context, identity object.Object) error {
	return d.addContact(ctx, identity, nil)
}

// addContact is AddContact. When head is set, the permalink head is only
// moved if it still points at head.
func (d *Directory) addContact(ctx context.Context, identity object.Object, head []byte) error {
	pubkeys, err := object.PubKeys(identity)
	if err != nil {
		return err
	}

	link, err := d.objects.Put(ctx, identity)
	if err != nil {
		return err
	}

	permalink, err := object.Permalink(identity)
	if err != nil {
		return err
	}

	writes := make([]store.Write, 0, len(pubkeys)+1)
	for _, pk := range pubkeys {
		data, err := object.Marshal(Mapping{
			Pub:       pk.Pub,
			Link:      link,
			Permalink: permalink,
		})
		if err != nil {
			return err
		}
		writes = append(writes, store.Write{Key: pubKeyKey(pk.Pub), Value: data})
	}
	headWrite := store.Write{Key: permalinkKey(permalink), Value: []byte(link)}
	if head != nil {
		headWrite.Cond = store.IfMatches
		headWrite.Expected = head
	}
	writes = append(writes, headWrite)

	if err := d.kv.PutAll(ctx, writes...); err != nil {
		if head != nil && common.Is(err, common.Conflict) {
			return common.Errorf("Identity", common.Collision, link, "head of %s moved", permalink)
		}
		return err
	}

	for _, pk := range pubkeys {
		d.cache.Remove(pk.Pub)
	}

	d.logger.WithFields(logrus.Fields{
		"link":      link,
		"permalink": permalink,
		"keys":      len(pubkeys),
	}).Debug("Added contact")

	return nil
}

// ValidateAndAdmit verifies an identity received from a remote party and
// adds it to the directory. An identity is refused with Collision if any of
// its keys already belongs to a revision that is neither this identity nor
// its declared predecessor. A later revision is only admitted on top of its
// predecessor, which must be the current head of the permalink.
func (d *Directory) ValidateAndAdmit(ctx context.Context, identity object.Object) error {
	if !identity.IsIdentity() {
		return common.Errorf("Identity", common.InvalidInput, "", "type is %q", identity.Type())
	}

	object.StripDerived(identity)
	if err := object.Stamp(identity); err != nil {
		return err
	}

	link := identity.String(object.LinkField)
	prevlink := identity.String(object.PrevlinkField)

	permalink, err := object.Permalink(identity)
	if err != nil {
		return err
	}

	if err := object.VerifyAuthenticity(identity, identity); err != nil {
		return err
	}

	pubkeys, err := object.PubKeys(identity)
	if err != nil {
		return err
	}

	existing, err := d.findAll(ctx, pubkeys)
	if err != nil {
		return err
	}

	logger := d.logger.WithField("link", link)

	known := false
	for _, m := range existing {
		switch {
		case m.Link == link:
			known = true
		case prevlink != "" && (m.Link == prevlink || m.Permalink == permalink):
			// Keys of earlier revisions. The chain is checked below.
		default:
			logger.WithFields(logrus.Fields{
				"existing": m.Link,
				"pub":      m.Pub,
			}).Warn("Identity collision")
			return common.Errorf("Identity", common.Collision, link, "key %s belongs to %s", m.Pub, m.Permalink)
		}
	}

	if known {
		return nil
	}

	if prevlink == "" {
		logger.Debug("Admitting new identity")
		return d.AddContact(ctx, identity)
	}

	head, err := d.kv.Get(ctx, permalinkKey(permalink))
	if err != nil {
		if common.Is(err, common.NotFound) {
			return common.Errorf("Identity", common.NotFound, link, "unknown predecessor %s", prevlink)
		}
		return err
	}
	if string(head) != prevlink {
		return common.Errorf("Identity", common.Collision, link, "%s is not the head of %s", prevlink, permalink)
	}

	if err := d.checkUpdate(ctx, identity, Mapping{Link: prevlink, Permalink: permalink}); err != nil {
		return err
	}

	logger.WithField("prevlink", prevlink).Debug("Admitting identity update")

	return d.addContact(ctx, identity, head)
}

// findAll looks up all keys in parallel and returns the mappings of the known
// ones.
func (d *Directory) findAll(ctx context.Context, pubkeys []keys.PubKey) ([]Mapping, error) {
	g, gctx := errgroup.WithContext(ctx)
	found := make([]*Mapping, len(pubkeys))

	for i, pk := range pubkeys {
		i, pub := i, pk.Pub
		g.Go(func() error {
			m, err := d.GetByPub(gctx, pub)
			if err != nil {
				if common.Is(err, common.NotFound) {
					return nil
				}
				return err
			}
			found[i] = &m
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var res []Mapping
	for _, m := range found {
		if m != nil {
			res = append(res, *m)
		}
	}

	return res, nil
}

// checkUpdate verifies that a revision continues the identity it claims to
// update: same permalink, and signed with an update key of the previous
// revision.
func (d *Directory) checkUpdate(ctx context.Context, identity object.Object, prev Mapping) error {
	link := identity.String(object.LinkField)

	if p, _ := object.Permalink(identity); p != prev.Permalink {
		return common.Errorf("Identity", common.Collision, link, "permalink %s does not match %s", p, prev.Permalink)
	}

	previous, err := d.objects.Get(ctx, prev.Link)
	if err != nil {
		return err
	}

	pk, ok := object.FindPubKey(previous, identity.String(object.SigPubKeyField))
	if !ok || pk.Purpose != keys.PurposeUpdate {
		return common.Errorf("Identity", common.InvalidSignature, link, "update not signed by an update key of %s", prev.Link)
	}

	return nil
}

// AddAuthorInfo stamps o with the permalink of its author, and for envelopes
// with the permalink of the recipient.
func (d *Directory) AddAuthorInfo(ctx context.Context, o object.Object) error {
	pub := o.String(object.SigPubKeyField)
	if pub == "" {
		var err error
		if pub, err = object.ExtractSigPubKey(o); err != nil {
			return err
		}
		o[object.SigPubKeyField] = pub
	}

	rpub := ""
	if o.IsEnvelope() {
		if rpub = o.RecipientPub(); rpub == "" {
			return common.Errorf("Object", common.InvalidMessageFormat, o.String(object.LinkField), "missing %s", object.RecipientPubKeyField)
		}
	}

	var author, recipient Mapping

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		author, err = d.GetByPub(gctx, pub)
		return err
	})

	if rpub != "" {
		g.Go(func() error {
			var err error
			recipient, err = d.GetByPub(gctx, rpub)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	o[object.AuthorField] = author.Permalink
	if rpub != "" {
		o[object.RecipientField] = recipient.Permalink
	}

	return nil
}

// VerifyAuthenticity checks o against the identity revision that lists its
// signing key.
func (d *Directory) VerifyAuthenticity(ctx context.Context, o object.Object) error {
	pub := o.String(object.SigPubKeyField)
	if pub == "" {
		var err error
		if pub, err = object.ExtractSigPubKey(o); err != nil {
			return err
		}
		o[object.SigPubKeyField] = pub
	}

	m, err := d.GetByPub(ctx, pub)
	if err != nil {
		return err
	}

	author, err := d.objects.Get(ctx, m.Link)
	if err != nil {
		return err
	}

	if err := object.VerifyAuthenticity(o, author); err != nil {
		return err
	}

	o[object.AuthorField] = m.Permalink

	return nil
}
