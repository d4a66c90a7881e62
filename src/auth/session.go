package auth

import (
	"github.com/mosaicnetworks/herald/src/messages"
	"github.com/mosaicnetworks/herald/src/object"
)

// Position is where one side of a session stands in the message streams
// between a client and the node.
type Position struct {
	Sent     *messages.Stub `json:"sent,omitempty"`
	Received *messages.Stub `json:"received,omitempty"`
}

// Session binds one client connection to an identity. Authenticated flips to
// true once, on a successful handshake. Connected toggles with the
// connection.
//
// Token is handed to the client once, when the handshake succeeds, and must
// accompany every later presence update. Only its hash is stored.
type Session struct {
	ClientID       string    `json:"clientId"`
	Permalink      string    `json:"permalink"`
	Challenge      string    `json:"challenge"`
	Time           int64     `json:"time"`
	Authenticated  bool      `json:"authenticated"`
	Connected      bool      `json:"connected"`
	ClientPosition *Position `json:"clientPosition,omitempty"`
	ServerPosition *Position `json:"serverPosition,omitempty"`
	Token          string    `codec:"-" json:"token,omitempty"`
	TokenHash      string    `codec:"tokenHash,omitempty" json:"-"`
}

// Live reports whether the session can receive pushed messages.
func (s *Session) Live() bool {
	return s.Authenticated && s.Connected
}

func (s *Session) marshal() ([]byte, error) {
	return object.Marshal(s)
}

func unmarshalSession(data []byte) (*Session, error) {
	s := new(Session)
	if err := object.UnmarshalInto(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Challenge is returned to a client that announced an identity. The client
// signs a ChallengeResponse echoing ClientID, Permalink and Challenge.
type Challenge struct {
	ClientID    string       `json:"clientId"`
	Permalink   string       `json:"permalink"`
	Challenge   string       `json:"challenge"`
	Time        int64        `json:"time"`
	Credentials *Credentials `json:"credentials,omitempty"`
}

// Challenge response properties.
const (
	ClientIDField  = "clientId"
	PermalinkField = "permalink"
	ChallengeField = "challenge"
	PositionField  = "position"
)

// NewChallengeResponse returns the unsigned response to c.
func NewChallengeResponse(c *Challenge, position *Position) object.Object {
	resp := object.Object{
		object.TypeField: object.TypeChallengeResponse,
		ClientIDField:    c.ClientID,
		PermalinkField:   c.Permalink,
		ChallengeField:   c.Challenge,
	}
	if position != nil {
		if p, err := positionValue(position); err == nil {
			resp[PositionField] = p
		}
	}
	return resp
}

func positionValue(p *Position) (map[string]interface{}, error) {
	b, err := object.Marshal(p)
	if err != nil {
		return nil, err
	}
	o, err := object.Unmarshal(b)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}(o), nil
}

func positionFrom(v interface{}) *Position {
	m, ok := object.AsObject(v)
	if !ok {
		return nil
	}
	b, err := object.Marshal(m)
	if err != nil {
		return nil
	}
	p := new(Position)
	if err := object.UnmarshalInto(b, p); err != nil {
		return nil
	}
	return p
}
