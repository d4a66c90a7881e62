package store

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"sync"
	"testing"

	"github.com/mosaicnetworks/herald/src/common"
)

func newTestBadgerKV(t *testing.T) (*BadgerKV, func()) {
	dir, err := ioutil.TempDir("", "herald-kv")
	if err != nil {
		t.Fatal(err)
	}
	kv, err := NewBadgerKV(dir, common.NewTestEntry(t, "kv"))
	if err != nil {
		os.RemoveAll(dir)
		t.Fatal(err)
	}
	return kv, func() {
		kv.Close()
		os.RemoveAll(dir)
	}
}

func forEachKV(t *testing.T, f func(t *testing.T, kv KV)) {
	t.Run("inmem", func(t *testing.T) {
		f(t, NewInmemKV())
	})
	t.Run("badger", func(t *testing.T) {
		kv, cleanup := newTestBadgerKV(t)
		defer cleanup()
		f(t, kv)
	})
}

func TestKVConditions(t *testing.T) {
	forEachKV(t, func(t *testing.T, kv KV) {
		ctx := context.Background()

		if _, err := kv.Get(ctx, "a"); !common.Is(err, common.NotFound) {
			t.Fatalf("missing key should fail with NotFound, got %v", err)
		}

		if err := Put(ctx, kv, "a", []byte("1"), IfAbsent); err != nil {
			t.Fatal(err)
		}
		if err := Put(ctx, kv, "a", []byte("2"), IfAbsent); !common.Is(err, common.KeyAlreadyExists) {
			t.Fatalf("IfAbsent on existing key should fail with KeyAlreadyExists, got %v", err)
		}

		err := kv.PutAll(ctx, Write{Key: "a", Value: []byte("3"), Cond: IfMatches, Expected: []byte("2")})
		if !common.Is(err, common.Conflict) {
			t.Fatalf("IfMatches on a different value should fail with Conflict, got %v", err)
		}
		err = kv.PutAll(ctx, Write{Key: "b", Value: []byte("3"), Cond: IfMatches, Expected: []byte("2")})
		if !common.Is(err, common.Conflict) {
			t.Fatalf("IfMatches on a missing key should fail with Conflict, got %v", err)
		}
		err = kv.PutAll(ctx, Write{Key: "a", Value: []byte("3"), Cond: IfMatches, Expected: []byte("1")})
		if err != nil {
			t.Fatal(err)
		}

		v, err := kv.Get(ctx, "a")
		if err != nil {
			t.Fatal(err)
		}
		if string(v) != "3" {
			t.Fatalf("a should be 3, not %s", v)
		}

		if err := kv.Delete(ctx, "a"); err != nil {
			t.Fatal(err)
		}
		if _, err := kv.Get(ctx, "a"); !common.Is(err, common.NotFound) {
			t.Fatalf("deleted key should fail with NotFound, got %v", err)
		}
	})
}

func TestKVPutAllAtomic(t *testing.T) {
	forEachKV(t, func(t *testing.T, kv KV) {
		ctx := context.Background()

		if err := Put(ctx, kv, "y", []byte("old"), Always); err != nil {
			t.Fatal(err)
		}

		err := kv.PutAll(ctx,
			Write{Key: "x", Value: []byte("1")},
			Write{Key: "y", Value: []byte("2"), Cond: IfAbsent},
		)
		if !common.Is(err, common.KeyAlreadyExists) {
			t.Fatalf("batch should fail with KeyAlreadyExists, got %v", err)
		}

		if _, err := kv.Get(ctx, "x"); !common.Is(err, common.NotFound) {
			t.Fatalf("no write of a failed batch should be visible")
		}

		err = kv.PutAll(ctx,
			Write{Key: "x", Value: []byte("1")},
			Write{Key: "y", Delete: true},
		)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := kv.Get(ctx, "y"); !common.Is(err, common.NotFound) {
			t.Fatalf("y should be deleted")
		}
	})
}

func TestKVScan(t *testing.T) {
	forEachKV(t, func(t *testing.T, kv KV) {
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			Put(ctx, kv, fmt.Sprintf("p_%03d", i), []byte{byte(i)}, Always)
		}
		Put(ctx, kv, "o_000", []byte("other"), Always)
		Put(ctx, kv, "q_000", []byte("other"), Always)

		keys := func(items []Item) []string {
			res := []string{}
			for _, i := range items {
				res = append(res, i.Key)
			}
			return res
		}

		cases := []struct {
			opts ScanOptions
			keys []string
		}{
			{ScanOptions{Prefix: "p_"}, []string{"p_000", "p_001", "p_002", "p_003", "p_004"}},
			{ScanOptions{Prefix: "p_", Limit: 2}, []string{"p_000", "p_001"}},
			{ScanOptions{Prefix: "p_", After: "p_001", Limit: 2}, []string{"p_002", "p_003"}},
			{ScanOptions{Prefix: "p_", Reverse: true, Limit: 1}, []string{"p_004"}},
			{ScanOptions{Prefix: "p_", Reverse: true, After: "p_003"}, []string{"p_002", "p_001", "p_000"}},
			{ScanOptions{Prefix: "p_", After: "p_004"}, []string{}},
			{ScanOptions{Prefix: "z_"}, []string{}},
		}

		for _, c := range cases {
			items, err := kv.Scan(ctx, c.opts)
			if err != nil {
				t.Fatal(err)
			}
			if got := keys(items); !reflect.DeepEqual(got, c.keys) {
				t.Fatalf("Scan(%+v) should return %v, not %v", c.opts, c.keys, got)
			}
		}
	})
}

func TestKVConcurrentIfAbsent(t *testing.T) {
	forEachKV(t, func(t *testing.T, kv KV) {
		ctx := context.Background()

		const writers = 10

		var wg sync.WaitGroup
		errs := make(chan error, writers)

		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- Put(ctx, kv, "seq_000005", []byte{byte(i)}, IfAbsent)
			}(i)
		}

		wg.Wait()
		close(errs)

		successes := 0
		for err := range errs {
			switch {
			case err == nil:
				successes++
			case common.Is(err, common.KeyAlreadyExists), common.Is(err, common.Conflict):
			default:
				t.Fatalf("unexpected error %v", err)
			}
		}

		if successes != 1 {
			t.Fatalf("exactly one writer should win, got %d", successes)
		}
	})
}

func TestBlobStores(t *testing.T) {
	dir, err := ioutil.TempDir("", "herald-blobs")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	badgerBlobs, err := NewBadgerBlobStore(dir, common.NewTestEntry(t, "blobs"))
	if err != nil {
		t.Fatal(err)
	}
	defer badgerBlobs.Close()

	for name, blobs := range map[string]BlobStore{"inmem": NewInmemBlobStore(), "badger": badgerBlobs} {
		ctx := context.Background()

		if _, err := blobs.Get(ctx, "k"); !common.Is(err, common.NotFound) {
			t.Fatalf("%s: missing blob should fail with NotFound, got %v", name, err)
		}
		if ok, _ := blobs.Exists(ctx, "k"); ok {
			t.Fatalf("%s: k should not exist", name)
		}
		if err := blobs.Put(ctx, "k", []byte("data")); err != nil {
			t.Fatal(err)
		}
		if ok, _ := blobs.Exists(ctx, "k"); !ok {
			t.Fatalf("%s: k should exist", name)
		}
		data, err := blobs.Get(ctx, "k")
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "data" {
			t.Fatalf("%s: blob should be data, not %s", name, data)
		}
		blobs.Delete(ctx, "k")
		if ok, _ := blobs.Exists(ctx, "k"); ok {
			t.Fatalf("%s: k should be deleted", name)
		}
	}
}
