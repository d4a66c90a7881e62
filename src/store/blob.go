package store

import (
	"context"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/herald/src/common"
	"github.com/sirupsen/logrus"
)

// BlobStore is a content-addressed store of byte blobs. Keys are derived
// from the content by the caller, so Put of an existing key is a no-op.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// BadgerBlobStore implements BlobStore on its own badger database, keeping
// large values apart from the KV tables.
type BadgerBlobStore struct {
	db     *badger.DB
	logger *logrus.Entry
}

// NewBadgerBlobStore opens, or creates, a badger blob store in path.
func NewBadgerBlobStore(path string, logger *logrus.Entry) (*BadgerBlobStore, error) {
	db, err := openBadger(path, logger)
	if err != nil {
		return nil, err
	}

	return &BadgerBlobStore{
		db:     db,
		logger: logger,
	}, nil
}

// Put implements BlobStore.
func (s *BadgerBlobStore) Put(ctx context.Context, key string, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Get implements BlobStore.
func (s *BadgerBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, mapBlobErr(err, key)
	}

	return data, nil
}

// Exists implements BlobStore.
func (s *BadgerBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})

	switch err {
	case nil:
		return true, nil
	case badger.ErrKeyNotFound:
		return false, nil
	}
	return false, err
}

// Delete implements BlobStore.
func (s *BadgerBlobStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close implements BlobStore.
func (s *BadgerBlobStore) Close() error {
	return s.db.Close()
}

func mapBlobErr(err error, key string) error {
	if err == badger.ErrKeyNotFound {
		return common.NewErr("Blob", common.NotFound, key)
	}
	return err
}

// InmemBlobStore implements BlobStore with a map.
type InmemBlobStore struct {
	sync.RWMutex
	blobs map[string][]byte
}

// NewInmemBlobStore ...
func NewInmemBlobStore() *InmemBlobStore {
	return &InmemBlobStore{
		blobs: make(map[string][]byte),
	}
}

// Put implements BlobStore.
func (s *InmemBlobStore) Put(ctx context.Context, key string, data []byte) error {
	s.Lock()
	defer s.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

// Get implements BlobStore.
func (s *InmemBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.RLock()
	defer s.RUnlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, common.NewErr("Blob", common.NotFound, key)
	}
	return append([]byte(nil), data...), nil
}

// Exists implements BlobStore.
func (s *InmemBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.blobs[key]
	return ok, nil
}

// Delete implements BlobStore.
func (s *InmemBlobStore) Delete(ctx context.Context, key string) error {
	s.Lock()
	defer s.Unlock()
	delete(s.blobs, key)
	return nil
}

// Close implements BlobStore.
func (s *InmemBlobStore) Close() error {
	return nil
}
