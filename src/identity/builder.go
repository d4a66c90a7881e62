package identity

import (
	"context"

	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/crypto/keys"
	"github.com/mosaicnetworks/herald/src/object"
)

// New returns the first revision of an identity listing the key of update,
// which signs it, followed by extra.
func New(ctx context.Context, update keys.Signer, extra ...keys.PubKey) (object.Object, error) {
	doc, err := newDocument(update, extra)
	if err != nil {
		return nil, err
	}
	return object.Sign(ctx, update, doc)
}

// NewVersion returns a revision of prev. It must be signed with an update key
// of prev for other nodes to admit it.
func NewVersion(ctx context.Context, prev object.Object, update keys.Signer, extra ...keys.PubKey) (object.Object, error) {
	if err := object.Stamp(prev); err != nil {
		return nil, err
	}

	doc, err := newDocument(update, extra)
	if err != nil {
		return nil, err
	}

	permalink, _ := object.Permalink(prev)
	doc[object.PrevlinkField] = prev.String(object.LinkField)
	doc[object.PermalinkField] = permalink

	return object.Sign(ctx, update, doc)
}

func newDocument(update keys.Signer, extra []keys.PubKey) (object.Object, error) {
	if update.PublicKey().Purpose != keys.PurposeUpdate {
		return nil, common.Errorf("Identity", common.InvalidInput, "", "signer purpose is %q, not %q", update.PublicKey().Purpose, keys.PurposeUpdate)
	}

	list := []interface{}{object.PubKeyValue(update.PublicKey())}
	for _, pk := range extra {
		list = append(list, object.PubKeyValue(pk))
	}

	return object.Object{
		object.TypeField:    object.TypeIdentity,
		object.PubKeysField: list,
	}, nil
}
