package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sizes of the sealed box components. A sealed box is salt || nonce ||
// ciphertext.
const (
	KeySize   = chacha20poly1305.KeySize
	SaltSize  = 16
	NonceSize = chacha20poly1305.NonceSizeX
)

// Argon2id parameters.
const (
	kdfTime    = 2
	kdfMemory  = 64 * 1024
	kdfThreads = 1
)

var (
	// ErrAuthFailed is returned when a sealed box does not open with the given
	// passphrase, or has been tampered with.
	ErrAuthFailed = errors.New("secretbox authentication failed")
	// ErrShortBox is returned when the input is too short to be a sealed box.
	ErrShortBox = errors.New("secretbox too short")
)

// Encrypt seals plaintext with a key derived from passphrase. A fresh salt
// and nonce are drawn for every call.
func Encrypt(passphrase []byte, plaintext []byte) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	key := DeriveKey(passphrase, salt)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, SaltSize+NonceSize+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a box produced by Encrypt.
func Decrypt(passphrase []byte, box []byte) ([]byte, error) {
	if len(box) < SaltSize+NonceSize+chacha20poly1305.Overhead {
		return nil, ErrShortBox
	}

	salt := box[:SaltSize]
	nonce := box[SaltSize : SaltSize+NonceSize]
	ciphertext := box[SaltSize+NonceSize:]

	key := DeriveKey(passphrase, salt)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// DeriveKey stretches passphrase into a KeySize key with Argon2id.
func DeriveKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, kdfTime, kdfMemory, kdfThreads, KeySize)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
