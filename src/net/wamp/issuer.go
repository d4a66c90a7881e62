package wamp

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/herald/src/auth"
)

// DefaultCredentialsTTL ...
const DefaultCredentialsTTL = time.Hour

// Issuer issues credentials that point a client at its own topics of the
// push realm.
type Issuer struct {
	URL         string
	Realm       string
	TopicPrefix string
	TTL         time.Duration
	Clock       clock.Clock
}

// Issue implements auth.CapabilityIssuer.
func (i *Issuer) Issue(ctx context.Context, clientID string, permalink string) (*auth.Credentials, error) {
	clk := i.Clock
	if clk == nil {
		clk = clock.New()
	}

	ttl := i.TTL
	if ttl == 0 {
		ttl = DefaultCredentialsTTL
	}

	return &auth.Credentials{
		Endpoint: i.URL,
		Realm:    i.Realm,
		Topic:    ClientTopic(i.TopicPrefix, clientID),
		Expires:  clk.Now().Add(ttl).UnixNano() / int64(time.Millisecond),
	}, nil
}
