package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"strings"
	"sync"

	hcrypto "github.com/mosaicnetworks/herald/src/crypto"
)

// SimpleKeyfile reads and writes keys as hex dumps. When a passphrase is set,
// the dump is sealed with hcrypto.Encrypt before being written.
type SimpleKeyfile struct {
	l          sync.Mutex
	keyfile    string
	passphrase []byte
}

// NewSimpleKeyfile instantiates a new SimpleKeyfile with an underlying file
func NewSimpleKeyfile(keyfile string) *SimpleKeyfile {
	simpleKeyfile := &SimpleKeyfile{
		keyfile: keyfile,
	}

	return simpleKeyfile
}

// NewEncryptedKeyfile returns a SimpleKeyfile that seals keys with passphrase.
func NewEncryptedKeyfile(keyfile string, passphrase string) *SimpleKeyfile {
	return &SimpleKeyfile{
		keyfile:    keyfile,
		passphrase: []byte(passphrase),
	}
}

// CheckFileInfo verifies that the file exists and has user permissions only.
func (k *SimpleKeyfile) CheckFileInfo() error {
	info, err := os.Stat(k.keyfile)
	if err != nil {
		return err
	}

	// get file permissions
	perm := info.Mode().Perm()

	// build 000111111 mask
	var nonUserMask os.FileMode = (1 << 6) - 1

	// get permissions for 'groups' and 'others'
	nonUserPerm := perm & nonUserMask

	if nonUserPerm != 0 {
		return fmt.Errorf("key file permissions should exclude 'groups' and 'others'. Got %o", perm)
	}

	return nil
}

// ReadKey reads from the underlying file which is expected to contain a raw
// hex dump of the key's D value, as produced by WriteKey.
func (k *SimpleKeyfile) ReadKey() (*ecdsa.PrivateKey, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.CheckFileInfo(); err != nil {
		return nil, err
	}

	buf, err := ioutil.ReadFile(k.keyfile)
	if err != nil {
		return nil, err
	}

	if len(k.passphrase) > 0 {
		buf, err = hcrypto.Decrypt(k.passphrase, buf)
		if err != nil {
			return nil, err
		}
	}

	key, err := hex.DecodeString(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, err
	}

	return ParsePrivateKey(key)
}

// WriteKey writes a raw hex dump of the key's D value to the underlying file.
func (k *SimpleKeyfile) WriteKey(key *ecdsa.PrivateKey) error {
	k.l.Lock()
	defer k.l.Unlock()

	rawKey := []byte(hex.EncodeToString(DumpPrivateKey(key)))

	if len(k.passphrase) > 0 {
		sealed, err := hcrypto.Encrypt(k.passphrase, rawKey)
		if err != nil {
			return err
		}
		rawKey = sealed
	}

	if err := os.MkdirAll(path.Dir(k.keyfile), 0700); err != nil {
		return err
	}

	return ioutil.WriteFile(k.keyfile, rawKey, 0600)
}
