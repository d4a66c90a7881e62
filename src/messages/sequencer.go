package messages

import (
	"context"
	"fmt"

	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/store"
	"github.com/sirupsen/logrus"
)

//==============================================================================
//Keys

func outboxSeqPrefix(recipient string) string {
	return fmt.Sprintf("outbox_%s_seq_", recipient)
}

func outboxSeqKey(recipient string, seq int64) string {
	return fmt.Sprintf("%s%012d", outboxSeqPrefix(recipient), seq)
}

func outboxTimePrefix(recipient string) string {
	return fmt.Sprintf("outbox_%s_time_", recipient)
}

func outboxTimeKey(recipient string, c Cursor) string {
	return fmt.Sprintf("%s%016d_%012d", outboxTimePrefix(recipient), c.Time, c.Seq)
}

func inboxPrefix(author string) string {
	return fmt.Sprintf("inbox_%s_", author)
}

func inboxKey(author string, time int64, link string) string {
	return fmt.Sprintf("%s%016d_%s", inboxPrefix(author), time, link)
}

func inboxLinkKey(link string) string {
	return fmt.Sprintf("inboxlink_%s", link)
}

//==============================================================================

// Sequencer maintains the per-recipient outbound and per-author inbound
// indexes of envelopes.
//
// Outbound stubs are unique on (recipient, seq): the seq key is written with
// an IfAbsent condition, in the same batch as the time index entry. Inbound
// stubs are unique on link through the inboxlink key.
type Sequencer struct {
	kv     store.KV
	logger *logrus.Entry
}

// NewSequencer ...
func NewSequencer(kv store.KV, logger *logrus.Entry) *Sequencer {
	return &Sequencer{
		kv:     kv,
		logger: logger,
	}
}

// LastOutbound returns the stub of the last envelope sent to recipient.
func (s *Sequencer) LastOutbound(ctx context.Context, recipient string) (Stub, error) {
	return s.last(ctx, outboxSeqPrefix(recipient), "Outbox", recipient)
}

// LastInbound returns the stub of the last envelope received from author.
func (s *Sequencer) LastInbound(ctx context.Context, author string) (Stub, error) {
	return s.last(ctx, inboxPrefix(author), "Inbox", author)
}

func (s *Sequencer) last(ctx context.Context, prefix string, subject string, key string) (Stub, error) {
	items, err := s.kv.Scan(ctx, store.ScanOptions{
		Prefix:  prefix,
		Limit:   1,
		Reverse: true,
	})
	if err != nil {
		return Stub{}, err
	}

	if len(items) == 0 {
		return Stub{}, common.NewErr(subject, common.NotFound, key)
	}

	return unmarshalStub(items[0].Value)
}

// PutOutbound records an envelope sent to stub.Recipient. It fails with
// Conflict if the sequence number is already taken.
func (s *Sequencer) PutOutbound(ctx context.Context, stub Stub) error {
	if stub.Recipient == "" || !InRange(stub.Time, stub.Seq) {
		return common.Errorf("Outbox", common.InvalidInput, stub.Link, "recipient %q seq %d time %d", stub.Recipient, stub.Seq, stub.Time)
	}

	data, err := stub.marshal()
	if err != nil {
		return err
	}

	seqKey := outboxSeqKey(stub.Recipient, stub.Seq)

	err = s.kv.PutAll(ctx,
		store.Write{Key: seqKey, Value: data, Cond: store.IfAbsent},
		store.Write{Key: outboxTimeKey(stub.Recipient, stub.Cursor()), Value: data},
	)

	if common.Is(err, common.KeyAlreadyExists) || common.Is(err, common.Conflict) {
		return common.Errorf("Outbox", common.Conflict, seqKey, "sequence %d is taken", stub.Seq)
	}

	return err
}

// PutInbound records an envelope received from stub.Author. It fails with
// Duplicate if an envelope with the same link was already recorded.
func (s *Sequencer) PutInbound(ctx context.Context, stub Stub) error {
	if stub.Author == "" {
		return common.Errorf("Inbox", common.InvalidInput, stub.Link, "missing author")
	}
	if !InRange(stub.Time, stub.Seq) {
		return common.Errorf("Inbox", common.InvalidInput, stub.Link, "seq %d time %d out of range", stub.Seq, stub.Time)
	}

	data, err := stub.marshal()
	if err != nil {
		return err
	}

	key := inboxKey(stub.Author, stub.Time, stub.Link)

	err = s.kv.PutAll(ctx,
		store.Write{Key: inboxLinkKey(stub.Link), Value: []byte(key), Cond: store.IfAbsent},
		store.Write{Key: key, Value: data},
	)

	if common.Is(err, common.KeyAlreadyExists) {
		return common.NewErr("Inbox", common.Duplicate, stub.Link)
	}
	if common.Is(err, common.Conflict) {
		if _, gerr := s.kv.Get(ctx, inboxLinkKey(stub.Link)); gerr == nil {
			return common.NewErr("Inbox", common.Duplicate, stub.Link)
		}
	}

	return err
}

// HasInbound reports whether an envelope was received under link.
func (s *Sequencer) HasInbound(ctx context.Context, link string) (bool, error) {
	_, err := s.kv.Get(ctx, inboxLinkKey(link))
	switch {
	case err == nil:
		return true, nil
	case common.Is(err, common.NotFound):
		return false, nil
	}
	return false, err
}

// OutboundSince returns up to limit stubs sent to recipient after cursor, in
// (time, seq) order, and the cursor to resume from.
func (s *Sequencer) OutboundSince(ctx context.Context, recipient string, cursor Cursor, limit int) ([]Stub, Cursor, error) {
	opts := store.ScanOptions{
		Prefix: outboxTimePrefix(recipient),
		Limit:  limit,
	}
	if cursor != (Cursor{}) {
		opts.After = outboxTimeKey(recipient, cursor)
	}

	stubs, err := s.scan(ctx, opts)
	if err != nil {
		return nil, cursor, err
	}

	next := cursor
	if len(stubs) > 0 {
		next = stubs[len(stubs)-1].Cursor()
	}

	return stubs, next, nil
}

// InboundSince returns up to limit stubs received from author with a time
// strictly greater than afterTime, oldest first.
func (s *Sequencer) InboundSince(ctx context.Context, author string, afterTime int64, limit int) ([]Stub, error) {
	opts := store.ScanOptions{
		Prefix: inboxPrefix(author),
		Limit:  limit,
	}
	if afterTime > 0 {
		// Past every key at afterTime, whatever the link.
		opts.After = fmt.Sprintf("%s%016d_\xff", inboxPrefix(author), afterTime)
	}

	return s.scan(ctx, opts)
}

func (s *Sequencer) scan(ctx context.Context, opts store.ScanOptions) ([]Stub, error) {
	items, err := s.kv.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	stubs := make([]Stub, 0, len(items))
	for _, item := range items {
		stub, err := unmarshalStub(item.Value)
		if err != nil {
			s.logger.WithError(err).WithField("key", item.Key).Error("Malformed stub")
			return nil, err
		}
		stubs = append(stubs, stub)
	}

	return stubs, nil
}
