// Package delivery moves sequenced envelopes to their recipients.
//
// Two transports share the Transport interface. The push transport publishes
// batches on the private topic of a live client session. The pull transport
// posts batches to the inbox endpoint of a friend provider. A Selector picks
// one per request: a client id means push, a known endpoint means pull, and
// otherwise the recipient is looked up in the friends directory.
//
// Delivery is best-effort. Envelopes stay in the recipient's outbound index
// whatever happens, and CatchUp walks that index forward from a cursor to
// deliver what was missed.
package delivery
