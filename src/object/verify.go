package object

import (
	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/crypto/keys"
)

// PubKeys returns the keys listed by an identity document.
func PubKeys(identity Object) ([]keys.PubKey, error) {
	list, ok := identity[PubKeysField].([]interface{})
	if !ok {
		if typed, ok := identity[PubKeysField].([]map[string]interface{}); ok {
			for _, m := range typed {
				list = append(list, m)
			}
		}
	}
	if len(list) == 0 {
		return nil, common.Errorf("Identity", common.InvalidInput, identity.String(LinkField), "no %s", PubKeysField)
	}

	res := make([]keys.PubKey, 0, len(list))
	for _, e := range list {
		m, ok := AsObject(e)
		if !ok {
			return nil, common.Errorf("Identity", common.InvalidInput, identity.String(LinkField), "malformed key")
		}
		pk := keys.PubKey{
			Type:        m.String("type"),
			Curve:       m.String("curve"),
			Purpose:     m.String("purpose"),
			NetworkName: m.String("networkName"),
			Pub:         m.String("pub"),
		}
		if pk.Pub == "" {
			return nil, common.Errorf("Identity", common.InvalidInput, identity.String(LinkField), "key without pub")
		}
		res = append(res, pk)
	}

	return res, nil
}

// PubKeyValue converts a key descriptor into the map form stored in identity
// documents.
func PubKeyValue(pk keys.PubKey) map[string]interface{} {
	m := map[string]interface{}{
		"type":    pk.Type,
		"curve":   pk.Curve,
		"purpose": pk.Purpose,
		"pub":     pk.Pub,
	}
	if pk.NetworkName != "" {
		m["networkName"] = pk.NetworkName
	}
	return m
}

// FindPubKey returns the key of identity whose pub is pub.
func FindPubKey(identity Object, pub string) (keys.PubKey, bool) {
	list, err := PubKeys(identity)
	if err != nil {
		return keys.PubKey{}, false
	}
	for _, pk := range list {
		if pk.Pub == pub {
			return pk, true
		}
	}
	return keys.PubKey{}, false
}

// VerifyAuthenticity checks that o was signed by a key of author, and that the
// key's purpose fits the object: identity documents are signed with update
// keys, and update keys sign nothing else.
func VerifyAuthenticity(o Object, author Object) error {
	link := o.String(LinkField)

	pub := o.String(SigPubKeyField)
	if pub == "" {
		var err error
		if pub, err = ExtractSigPubKey(o); err != nil {
			return err
		}
	}

	pk, ok := FindPubKey(author, pub)
	if !ok {
		return common.Errorf("Object", common.InvalidSignature, link, "author does not list signing key %s", pub)
	}

	isUpdateKey := pk.Purpose == keys.PurposeUpdate
	if o.IsIdentity() && !isUpdateKey {
		return common.Errorf("Object", common.InvalidSignature, link, "identity must be signed with an update key, got %q", pk.Purpose)
	}
	if !o.IsIdentity() && isUpdateKey {
		return common.Errorf("Object", common.InvalidSignature, link, "update key may only sign identities")
	}

	return nil
}
