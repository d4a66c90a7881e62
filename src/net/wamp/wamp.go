// Package wamp hosts the publish/subscribe realm through which connected
// clients receive their messages live.
//
// The node runs a WAMP router behind a websocket server. Every authenticated
// client is issued a topic prefix scoped to its client id, and subscribes to
// the message, ack and reject topics under that prefix. The node publishes to
// those topics through a Client connected to the same router, either locally
// or over the network.
//
// If a certificate and key are configured, the websocket server is served
// over TLS. Otherwise it listens in the clear, which should only be used for
// testing or behind a terminating proxy.
package wamp

import "fmt"

const (
	// DefaultRealm ...
	DefaultRealm = "herald"
	// DefaultTopicPrefix ...
	DefaultTopicPrefix = "herald.client"

	// ErrRejected is the error URI published alongside a rejection.
	ErrRejected = "io.herald.rejected"
)

// ClientTopic is the topic prefix scoped to one client.
func ClientTopic(prefix string, clientID string) string {
	return fmt.Sprintf("%s.%s", prefix, clientID)
}

// MessageTopic is where batches of envelopes are published for a client.
func MessageTopic(prefix string, clientID string) string {
	return ClientTopic(prefix, clientID) + ".msg"
}

// AckTopic is where the node acknowledges messages received from a client.
func AckTopic(prefix string, clientID string) string {
	return ClientTopic(prefix, clientID) + ".ack"
}

// RejectTopic is where the node reports messages from a client it refused.
func RejectTopic(prefix string, clientID string) string {
	return ClientTopic(prefix, clientID) + ".reject"
}
