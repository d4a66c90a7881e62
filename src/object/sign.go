package object

import (
	"context"

	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/crypto"
	"github.com/mosaicnetworks/herald/src/crypto/keys"
)

// sigHash returns the hash covered by the signature: the canonical body of o
// without _s.
func sigHash(o Object) ([]byte, error) {
	body := o.Body()
	delete(body, SigField)

	b, err := Marshal(body)
	if err != nil {
		return nil, err
	}

	return crypto.SHA256(b), nil
}

// Sign returns a signed copy of o. The copy is stamped with _s, _sigPubKey,
// _link, and _permalink if o is a first revision. Any previous signature is
// replaced.
func Sign(ctx context.Context, signer keys.Signer, o Object) (Object, error) {
	if o.Type() == "" {
		return nil, common.Errorf("Object", common.InvalidInput, "", "missing %s", TypeField)
	}

	signed := o.Clone()
	delete(signed, SigField)
	delete(signed, LinkField)
	delete(signed, SigPubKeyField)
	if signed.IsVirtual(PermalinkField) {
		delete(signed, PermalinkField)
	}

	hash, err := sigHash(signed)
	if err != nil {
		return nil, err
	}

	sig, err := signer.Sign(ctx, hash)
	if err != nil {
		return nil, err
	}

	signed[SigField] = keys.EncodeSignature(sig)
	signed[SigPubKeyField] = signer.PublicKey().Pub

	if err := Stamp(signed); err != nil {
		return nil, err
	}

	return signed, nil
}

// ExtractSigPubKey recovers the hex public key that produced the signature of
// o.
func ExtractSigPubKey(o Object) (string, error) {
	s := o.String(SigField)
	if s == "" {
		return "", common.Errorf("Object", common.InvalidSignature, o.String(LinkField), "missing signature")
	}

	sig, err := keys.DecodeSignature(s)
	if err != nil {
		return "", common.Errorf("Object", common.InvalidSignature, o.String(LinkField), "malformed signature: %v", err)
	}

	hash, err := sigHash(o)
	if err != nil {
		return "", err
	}

	pub, err := keys.RecoverPublicKey(sig, hash)
	if err != nil {
		return "", common.Errorf("Object", common.InvalidSignature, o.String(LinkField), "%v", err)
	}

	return keys.PublicKeyHex(pub), nil
}
