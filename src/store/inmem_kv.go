package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mosaicnetworks/herald/src/common"
)

// InmemKV implements KV with a map. It is used in tests and by nodes that do
// not need persistence.
type InmemKV struct {
	sync.RWMutex
	items map[string][]byte
}

// NewInmemKV ...
func NewInmemKV() *InmemKV {
	return &InmemKV{
		items: make(map[string][]byte),
	}
}

// Get implements KV.
func (s *InmemKV) Get(ctx context.Context, key string) ([]byte, error) {
	s.RLock()
	defer s.RUnlock()

	v, ok := s.items[key]
	if !ok {
		return nil, common.NewErr("KV", common.NotFound, key)
	}

	return append([]byte(nil), v...), nil
}

// PutAll implements KV.
func (s *InmemKV) PutAll(ctx context.Context, writes ...Write) error {
	s.Lock()
	defer s.Unlock()

	for _, w := range writes {
		current, exists := s.items[w.Key]
		if err := checkCondition(w, current, exists); err != nil {
			return err
		}
	}

	for _, w := range writes {
		if w.Delete {
			delete(s.items, w.Key)
			continue
		}
		s.items[w.Key] = append([]byte(nil), w.Value...)
	}

	return nil
}

// Delete implements KV.
func (s *InmemKV) Delete(ctx context.Context, key string) error {
	s.Lock()
	defer s.Unlock()

	delete(s.items, key)
	return nil
}

// Scan implements KV.
func (s *InmemKV) Scan(ctx context.Context, opts ScanOptions) ([]Item, error) {
	s.RLock()
	defer s.RUnlock()

	keys := make([]string, 0)
	for k := range s.items {
		if strings.HasPrefix(k, opts.Prefix) && inRange(k, opts) {
			keys = append(keys, k)
		}
	}

	if opts.Reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	} else {
		sort.Strings(keys)
	}

	if opts.Limit > 0 && len(keys) > opts.Limit {
		keys = keys[:opts.Limit]
	}

	items := make([]Item, len(keys))
	for i, k := range keys {
		items[i] = Item{Key: k, Value: append([]byte(nil), s.items[k]...)}
	}

	return items, nil
}

// Close implements KV.
func (s *InmemKV) Close() error {
	return nil
}
