// Package keys implements the public key cryptography used by the provider
// and its counterparties.
//
// Every principal owns one or more secp256k1 key-pairs, each tagged with a
// purpose. Keys with purpose "update" may only sign new revisions of an
// identity document; keys with purpose "sign" sign everything else. Signing is
// abstracted behind the Signer interface because the private key may live in
// a remote keystore.
package keys
