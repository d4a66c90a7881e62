package messages

import (
	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/object"
)

// Index keys zero-pad times and sequence numbers, so they only sort in order
// between 0 and these bounds.
const (
	MaxTime int64 = 1e16 - 1
	MaxSeq  int64 = 1e12 - 1
)

// InRange reports whether t and seq can be indexed.
func InRange(t int64, seq int64) bool {
	return t >= 0 && t <= MaxTime && seq >= 0 && seq <= MaxSeq
}

// Stub is the index entry of an envelope.
type Stub struct {
	Link      string `json:"link"`
	Seq       int64  `json:"seq"`
	Time      int64  `json:"time"`
	Author    string `json:"author,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	PrevLink  string `json:"prevLink,omitempty"`
}

// Cursor is an exclusive position in a recipient's outbound stream. The zero
// Cursor is before the first message.
type Cursor struct {
	Time int64 `json:"time"`
	Seq  int64 `json:"seq"`
}

// Cursor returns the position of s.
func (s Stub) Cursor() Cursor {
	return Cursor{Time: s.Time, Seq: s.Seq}
}

// StubFromEnvelope builds the stub of a stamped envelope.
func StubFromEnvelope(e object.Object) (Stub, error) {
	link := e.String(object.LinkField)

	seq, ok := e.Int64(object.SeqField)
	if !ok {
		return Stub{}, common.Errorf("Envelope", common.InvalidMessageFormat, link, "missing %s", object.SeqField)
	}
	t, ok := e.Int64(object.TimeField)
	if !ok {
		return Stub{}, common.Errorf("Envelope", common.InvalidMessageFormat, link, "missing %s", object.TimeField)
	}

	return Stub{
		Link:      link,
		Seq:       seq,
		Time:      t,
		Author:    e.String(object.AuthorField),
		Recipient: e.String(object.RecipientField),
		PrevLink:  e.String(object.PrevMsgLinkField),
	}, nil
}

func (s Stub) marshal() ([]byte, error) {
	return object.Marshal(s)
}

func unmarshalStub(data []byte) (Stub, error) {
	var s Stub
	err := object.UnmarshalInto(data, &s)
	return s, err
}
