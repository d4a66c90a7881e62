package keys

import (
	"crypto/ecdsa"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/herald/src/common"
)

// ToPublicKey parses a serialized secp256k1 public key, compressed or
// uncompressed.
func ToPublicKey(pub []byte) (*ecdsa.PublicKey, error) {
	pk, err := btcec.ParsePubKey(pub, Curve())
	if err != nil {
		return nil, err
	}
	return pk.ToECDSA(), nil
}

// FromPublicKey serializes a public key in compressed form (33 bytes).
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return (*btcec.PublicKey)(pub).SerializeCompressed()
}

// PublicKeyHex returns the hexadecimal representation of the compressed form of
// the public key. This is the form stored in identity documents and in the
// pubkey directory.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return common.EncodeToString(FromPublicKey(pub))
}

// ParsePublicKeyHex is the inverse of PublicKeyHex.
func ParsePublicKeyHex(pubHex string) (*ecdsa.PublicKey, error) {
	raw, err := common.DecodeFromString(pubHex)
	if err != nil {
		return nil, err
	}
	return ToPublicKey(raw)
}
