package store

import (
	"context"
	"strings"

	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/herald/src/common"
	"github.com/sirupsen/logrus"
)

// conflictAttempts bounds the number of times a batch is re-evaluated after
// badger reports a transaction conflict.
const conflictAttempts = 3

// BadgerKV implements KV on a badger database. Conditions are evaluated and
// writes applied in a single optimistic transaction, so a concurrent writer
// touching the same keys makes the commit fail with badger.ErrConflict. The
// batch is then re-evaluated against the new state.
type BadgerKV struct {
	db     *badger.DB
	path   string
	logger *logrus.Entry
}

// NewBadgerKV opens, or creates, a badger database in path.
func NewBadgerKV(path string, logger *logrus.Entry) (*BadgerKV, error) {
	db, err := openBadger(path, logger)
	if err != nil {
		return nil, err
	}

	return &BadgerKV{
		db:     db,
		path:   path,
		logger: logger,
	}, nil
}

func openBadger(path string, logger *logrus.Entry) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = logger.WithField("db", path)
	return badger.Open(opts)
}

// Get implements KV.
func (s *BadgerKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, mapBadgerErr(err, key)
	}

	return value, nil
}

// PutAll implements KV.
func (s *BadgerKV) PutAll(ctx context.Context, writes ...Write) error {
	var err error

	for attempt := 0; attempt < conflictAttempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		err = s.db.Update(func(txn *badger.Txn) error {
			return applyWrites(txn, writes)
		})

		if err != badger.ErrConflict {
			break
		}

		s.logger.WithField("attempt", attempt).Debug("Badger transaction conflict")
	}

	if err == badger.ErrConflict {
		key := ""
		if len(writes) > 0 {
			key = writes[0].Key
		}
		return common.Errorf("KV", common.Conflict, key, "concurrent transaction")
	}

	return err
}

func applyWrites(txn *badger.Txn, writes []Write) error {
	for _, w := range writes {
		if w.Cond != Always {
			var current []byte
			exists := true

			item, err := txn.Get([]byte(w.Key))
			switch {
			case err == badger.ErrKeyNotFound:
				exists = false
			case err != nil:
				return err
			default:
				if current, err = item.ValueCopy(nil); err != nil {
					return err
				}
			}

			if err := checkCondition(w, current, exists); err != nil {
				return err
			}
		}

		if w.Delete {
			if err := txn.Delete([]byte(w.Key)); err != nil {
				return err
			}
			continue
		}

		if err := txn.Set([]byte(w.Key), w.Value); err != nil {
			return err
		}
	}

	return nil
}

// Delete implements KV.
func (s *BadgerKV) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Scan implements KV.
func (s *BadgerKV) Scan(ctx context.Context, opts ScanOptions) ([]Item, error) {
	var items []Item

	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Reverse = opts.Reverse

		it := txn.NewIterator(iopts)
		defer it.Close()

		prefix := []byte(opts.Prefix)

		for it.Seek(seekKey(opts)); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))

			if !inRange(key, opts) {
				continue
			}

			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			items = append(items, Item{Key: key, Value: value})

			if opts.Limit > 0 && len(items) >= opts.Limit {
				break
			}
		}

		return nil
	})

	return items, err
}

// seekKey returns the first key to visit. Reverse iterators seek to the
// largest key smaller than or equal to the seek key.
func seekKey(opts ScanOptions) []byte {
	if opts.After != "" && strings.HasPrefix(opts.After, opts.Prefix) {
		return []byte(opts.After)
	}
	if opts.Reverse {
		return append([]byte(opts.Prefix), 0xFF)
	}
	return []byte(opts.Prefix)
}

// Close implements KV.
func (s *BadgerKV) Close() error {
	return s.db.Close()
}

// StorePath ...
func (s *BadgerKV) StorePath() string {
	return s.path
}

func mapBadgerErr(err error, key string) error {
	switch err {
	case badger.ErrKeyNotFound:
		return common.NewErr("KV", common.NotFound, key)
	case badger.ErrConflict:
		return common.NewErr("KV", common.Conflict, key)
	}
	return err
}
