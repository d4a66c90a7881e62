package object

import (
	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/crypto"
)

// BodyBytes returns the canonical encoding of the hashed body of o. These are
// the bytes the object store persists under the object's link.
func BodyBytes(o Object) ([]byte, error) {
	return Marshal(o.Body())
}

// Link returns the hex SHA-256 of the canonical body of o.
func Link(o Object) (string, error) {
	b, err := BodyBytes(o)
	if err != nil {
		return "", err
	}
	return LinkBytes(b), nil
}

// LinkBytes returns the link of an already encoded body.
func LinkBytes(body []byte) string {
	return common.EncodeToString(crypto.SHA256(body))
}

// Permalink returns the _permalink of o if it has one, or its link otherwise:
// the first revision of an object is its own permalink.
func Permalink(o Object) (string, error) {
	if p := o.String(PermalinkField); p != "" {
		return p, nil
	}
	return Link(o)
}

// Stamp fills in the derived metadata of o: _link, _sigPubKey when o is
// signed, and _permalink (as a virtual property) on first revisions.
func Stamp(o Object) error {
	if o.String(SigField) != "" && o.String(SigPubKeyField) == "" {
		pub, err := ExtractSigPubKey(o)
		if err != nil {
			return err
		}
		o[SigPubKeyField] = pub
	}

	link, err := Link(o)
	if err != nil {
		return err
	}
	o[LinkField] = link

	if o.String(PermalinkField) == "" {
		o[PermalinkField] = link
		o.AddVirtual(PermalinkField)
	}

	return nil
}

// StripDerived removes the locally derived metadata of o, which must never be
// trusted when it comes from a remote party. The _virtual list goes too, so
// every remaining property is covered by the signature. A first revision
// loses its _permalink, which Stamp derives again from the link.
func StripDerived(o Object) {
	delete(o, LinkField)
	delete(o, SigPubKeyField)
	delete(o, AuthorField)
	delete(o, RecipientField)
	delete(o, InboundField)
	delete(o, VirtualField)

	if o.String(PrevlinkField) == "" {
		delete(o, PermalinkField)
	}
}
