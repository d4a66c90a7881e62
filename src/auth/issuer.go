package auth

import "context"

// Credentials are the temporary, client-scoped transport credentials issued
// alongside a challenge.
type Credentials struct {
	Endpoint string `json:"endpoint"`
	Realm    string `json:"realm,omitempty"`
	Topic    string `json:"topic,omitempty"`
	Token    string `json:"token,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
}

// CapabilityIssuer issues transport credentials for a client session.
type CapabilityIssuer interface {
	Issue(ctx context.Context, clientID string, permalink string) (*Credentials, error)
}

// StaticIssuer hands out the same credentials to every client.
type StaticIssuer struct {
	Credentials Credentials
}

// Issue implements CapabilityIssuer.
func (i *StaticIssuer) Issue(ctx context.Context, clientID string, permalink string) (*Credentials, error) {
	c := i.Credentials
	return &c, nil
}
