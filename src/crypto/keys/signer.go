package keys

import (
	"context"
	"crypto/ecdsa"
)

// Key purposes.
const (
	// PurposeSign is the purpose of keys that sign messages and payloads.
	PurposeSign = "sign"
	// PurposeUpdate is the purpose of keys that sign identity revisions.
	PurposeUpdate = "update"
)

// KeyTypeEC is the only key type in use.
const KeyTypeEC = "ec"

// PubKey describes one public key listed in an identity document.
type PubKey struct {
	Type        string `json:"type"`
	Curve       string `json:"curve"`
	Purpose     string `json:"purpose"`
	NetworkName string `json:"networkName,omitempty"`
	Pub         string `json:"pub"`
}

// NewPubKey describes pub with the given purpose.
func NewPubKey(pub *ecdsa.PublicKey, purpose string) PubKey {
	return PubKey{
		Type:    KeyTypeEC,
		Curve:   CurveName,
		Purpose: purpose,
		Pub:     PublicKeyHex(pub),
	}
}

// Signer signs hashes on behalf of one key. Implementations may call out to a
// remote keystore, so Sign takes a context.
type Signer interface {
	PublicKey() PubKey
	Sign(ctx context.Context, hash []byte) ([]byte, error)
}

// LocalSigner implements Signer with an in-process private key.
type LocalSigner struct {
	key *ecdsa.PrivateKey
	pub PubKey
}

// NewLocalSigner ...
func NewLocalSigner(key *ecdsa.PrivateKey, purpose string) *LocalSigner {
	return &LocalSigner{
		key: key,
		pub: NewPubKey(&key.PublicKey, purpose),
	}
}

// PublicKey implements Signer.
func (s *LocalSigner) PublicKey() PubKey {
	return s.pub
}

// Sign implements Signer.
func (s *LocalSigner) Sign(ctx context.Context, hash []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Sign(s.key, hash)
}
