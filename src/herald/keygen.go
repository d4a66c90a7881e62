package herald

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/mosaicnetworks/herald/src/config"
	"github.com/mosaicnetworks/herald/src/crypto/keys"
	"github.com/mosaicnetworks/herald/src/identity"
	"github.com/mosaicnetworks/herald/src/object"
)

func keyfile(path string, passphrase string) *keys.SimpleKeyfile {
	if passphrase != "" {
		return keys.NewEncryptedKeyfile(path, passphrase)
	}
	return keys.NewSimpleKeyfile(path)
}

// Keygen creates the signing and update keys of a new node, and its
// self-signed identity document. It refuses to overwrite existing keys.
func Keygen(conf *config.Config) (object.Object, error) {
	for _, f := range []string{conf.Keyfile(), conf.UpdateKeyfile()} {
		if _, err := os.Stat(f); err == nil {
			return nil, fmt.Errorf("Another key already lives under %s", f)
		}
	}

	if err := os.MkdirAll(conf.DataDir, 0700); err != nil {
		return nil, err
	}

	signKey, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	updateKey, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	if err := keyfile(conf.Keyfile(), conf.Passphrase).WriteKey(signKey); err != nil {
		return nil, err
	}

	if err := keyfile(conf.UpdateKeyfile(), conf.Passphrase).WriteKey(updateKey); err != nil {
		return nil, err
	}

	return writeIdentity(conf, signKey, updateKey)
}

// writeIdentity signs the first revision of the node's identity and writes
// its body to the identity file.
func writeIdentity(conf *config.Config, signKey, updateKey *ecdsa.PrivateKey) (object.Object, error) {
	sign := keys.NewLocalSigner(signKey, keys.PurposeSign)
	update := keys.NewLocalSigner(updateKey, keys.PurposeUpdate)

	self, err := identity.New(context.Background(), update, sign.PublicKey())
	if err != nil {
		return nil, err
	}

	body, err := object.BodyBytes(self)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(conf.IdentityFile()), 0700); err != nil {
		return nil, err
	}

	if err := ioutil.WriteFile(conf.IdentityFile(), body, 0600); err != nil {
		return nil, err
	}

	return self, nil
}
