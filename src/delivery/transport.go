package delivery

import (
	"context"
	"errors"

	"github.com/mosaicnetworks/herald/src/object"
)

// Capability is a set of operations a Transport supports.
type Capability uint8

const (
	// CapDeliverBatch ...
	CapDeliverBatch Capability = 1 << iota
	// CapAck ...
	CapAck
	// CapReject ...
	CapReject
)

// Has reports whether every capability of c2 is in c.
func (c Capability) Has(c2 Capability) bool {
	return c&c2 == c2
}

// ErrUnsupported is returned by a Transport asked to do something outside
// its capabilities.
var ErrUnsupported = errors.New("operation not supported by transport")

// Target says where a recipient can be reached. At least one of ClientID and
// Endpoint is set by the time a Transport sees it.
type Target struct {
	Recipient string
	ClientID  string
	Endpoint  string
}

// Transport delivers batches of envelopes, and optionally acknowledges or
// rejects messages received from the target.
type Transport interface {
	Name() string
	Capabilities() Capability
	DeliverBatch(ctx context.Context, target Target, envelopes []object.Object) error
	Ack(ctx context.Context, target Target, link string) error
	Reject(ctx context.Context, target Target, link string, reason error) error
}
