// Package config defines the configuration for a Herald node.
//
// Regardless of how a node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, a node relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//  sign_key // the key signing messages (cf. herald keygen).
//  update_key // the key signing revisions of the node's identity.
//  identity.json // the node's own identity document.
//  friends.json // (optional) a JSON list of friend providers.
//  cert.pem, key.pem // (optional) TLS material for the push realm.
//
// Key files are sealed with a passphrase when one is configured.
package config
