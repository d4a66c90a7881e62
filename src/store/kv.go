package store

import (
	"bytes"
	"context"

	"github.com/mosaicnetworks/herald/src/common"
)

// Condition guards a write.
type Condition int

const (
	// Always writes unconditionally.
	Always Condition = iota
	// IfAbsent writes only if the key does not exist. It fails with
	// KeyAlreadyExists otherwise.
	IfAbsent
	// IfMatches writes only if the current value equals Write.Expected. It
	// fails with Conflict otherwise, including when the key is missing.
	IfMatches
)

// Write is one entry of a batch of writes.
type Write struct {
	Key      string
	Value    []byte
	Cond     Condition
	Expected []byte
	Delete   bool
}

// Item is a key-value pair returned by Scan.
type Item struct {
	Key   string
	Value []byte
}

// ScanOptions selects a range of keys. Keys are returned in ascending order,
// or descending if Reverse is set. After is an exclusive cursor: only keys
// strictly greater than After (strictly smaller when Reverse) are returned.
// Limit 0 means no limit.
type ScanOptions struct {
	Prefix  string
	After   string
	Limit   int
	Reverse bool
}

// KV is a sorted key-value table.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// PutAll applies writes atomically: either every condition holds and all
	// writes are applied, or none is.
	PutAll(ctx context.Context, writes ...Write) error
	Delete(ctx context.Context, key string) error
	Scan(ctx context.Context, opts ScanOptions) ([]Item, error)
	Close() error
}

// Put is a single conditional write.
func Put(ctx context.Context, kv KV, key string, value []byte, cond Condition) error {
	return kv.PutAll(ctx, Write{Key: key, Value: value, Cond: cond})
}

// checkCondition evaluates w against the current value of its key. exists is
// false if the key is missing.
func checkCondition(w Write, current []byte, exists bool) error {
	switch w.Cond {
	case IfAbsent:
		if exists {
			return common.NewErr("KV", common.KeyAlreadyExists, w.Key)
		}
	case IfMatches:
		if !exists {
			return common.Errorf("KV", common.Conflict, w.Key, "key is missing")
		}
		if !bytes.Equal(current, w.Expected) {
			return common.Errorf("KV", common.Conflict, w.Key, "value changed")
		}
	}
	return nil
}

func inRange(key string, opts ScanOptions) bool {
	if opts.After == "" {
		return true
	}
	if opts.Reverse {
		return key < opts.After
	}
	return key > opts.After
}
