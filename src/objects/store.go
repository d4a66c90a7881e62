package objects

import (
	"context"
	"errors"

	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/mosaicnetworks/herald/src/store"
	"github.com/sirupsen/logrus"
)

// Store is the content-addressed object store. Objects are persisted as the
// canonical encoding of their body, under their link.
type Store struct {
	blobs  store.BlobStore
	logger *logrus.Entry
}

// NewStore ...
func NewStore(blobs store.BlobStore, logger *logrus.Entry) *Store {
	return &Store{
		blobs:  blobs,
		logger: logger,
	}
}

// Get returns the object stored under link, with its derived metadata
// restored. The recomputed link must equal link, otherwise the stored bytes
// have been tampered with.
//
// If some embeds fail to resolve, Get returns the partially resolved object
// together with an *EmbedError. Its link is not checked in that case.
func (s *Store) Get(ctx context.Context, link string) (object.Object, error) {
	data, err := s.blobs.Get(ctx, link)
	if err != nil {
		if common.Is(err, common.NotFound) {
			return nil, common.NewErr("Object", common.NotFound, link)
		}
		return nil, err
	}

	o, err := object.Unmarshal(data)
	if err != nil {
		s.logger.WithError(err).WithField("link", link).Error("Stored object does not decode")
		return nil, err
	}

	if err := s.ResolveEmbeds(ctx, o); err != nil {
		var embedErr *EmbedError
		if !errors.As(err, &embedErr) {
			return nil, err
		}

		s.logger.WithError(err).WithField("link", link).Warn("Unresolved embeds")

		o[object.LinkField] = link
		if o.String(object.PermalinkField) == "" {
			o[object.PermalinkField] = link
			o.AddVirtual(object.PermalinkField)
		}
		return o, embedErr
	}

	if err := object.Stamp(o); err != nil {
		return nil, err
	}

	if o.String(object.LinkField) != link {
		s.logger.WithFields(logrus.Fields{
			"key":  link,
			"link": o.String(object.LinkField),
		}).Error("Link mismatch")
		return nil, common.Errorf("Object", common.InvalidSignature, link, "link mismatch")
	}

	return o, nil
}

// Put stamps the missing metadata of o, moves its embeds to the blob store
// and persists the canonical body under the link. Putting an object that is
// already stored is a no-op. o itself is stamped but otherwise unchanged.
func (s *Store) Put(ctx context.Context, o object.Object) (string, error) {
	if err := object.Stamp(o); err != nil {
		return "", err
	}

	link := o.String(object.LinkField)

	exists, err := s.blobs.Exists(ctx, link)
	if err != nil {
		return "", err
	}
	if exists {
		return link, nil
	}

	stored := o.DeepClone()
	if _, err := s.ReplaceEmbeds(ctx, stored); err != nil {
		return "", err
	}

	body, err := object.BodyBytes(stored)
	if err != nil {
		return "", err
	}

	if err := s.blobs.Put(ctx, link, body); err != nil {
		return "", err
	}

	s.logger.WithFields(logrus.Fields{
		"link": link,
		"type": o.Type(),
	}).Debug("Put object")

	return link, nil
}

// Delete removes the object stored under link. Embeds are left in place since
// other objects may share them.
func (s *Store) Delete(ctx context.Context, link string) error {
	return s.blobs.Delete(ctx, link)
}

// Exists ...
func (s *Store) Exists(ctx context.Context, link string) (bool, error) {
	return s.blobs.Exists(ctx, link)
}
