package keys

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/herald/src/common"
)

// SignatureSize is the length of a compact recoverable signature.
const SignatureSize = 65

// Sign produces a deterministic (RFC6979) compact signature of hash, from
// which the public key can be recovered.
func Sign(priv *ecdsa.PrivateKey, hash []byte) ([]byte, error) {
	return btcec.SignCompact(Curve(), (*btcec.PrivateKey)(priv), hash, true)
}

// RecoverPublicKey returns the public key that produced sig over hash.
func RecoverPublicKey(sig, hash []byte) (*ecdsa.PublicKey, error) {
	if len(sig) != SignatureSize {
		return nil, fmt.Errorf("wrong signature length: got %d, want %d", len(sig), SignatureSize)
	}
	pub, _, err := btcec.RecoverCompact(Curve(), sig, hash)
	if err != nil {
		return nil, err
	}
	return pub.ToECDSA(), nil
}

// Verify verifies that sig is a valid signature of hash by the owner of pub.
func Verify(pub *ecdsa.PublicKey, hash, sig []byte) bool {
	recovered, err := RecoverPublicKey(sig, hash)
	if err != nil {
		return false
	}
	return recovered.X.Cmp(pub.X) == 0 && recovered.Y.Cmp(pub.Y) == 0
}

// EncodeSignature returns a string representation of a signature.
func EncodeSignature(sig []byte) string {
	return common.EncodeToString(sig)
}

// DecodeSignature parses a string representation of a signature as produced by
// EncodeSignature.
func DecodeSignature(sig string) ([]byte, error) {
	raw, err := common.DecodeFromString(sig)
	if err != nil {
		return nil, err
	}
	if len(raw) != SignatureSize {
		return nil, fmt.Errorf("wrong signature length: got %d, want %d", len(raw), SignatureSize)
	}
	return raw, nil
}
