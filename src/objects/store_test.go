package objects

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/crypto"
	"github.com/mosaicnetworks/herald/src/crypto/keys"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/mosaicnetworks/herald/src/store"
)

const (
	photo = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="
	scan  = "data:application/pdf;base64,JVBERi0xLjQK"
)

func newTestStore(t *testing.T) (*Store, *store.InmemBlobStore) {
	blobs := store.NewInmemBlobStore()
	return NewStore(blobs, common.NewTestEntry(t, "objects")), blobs
}

func signedNote(t *testing.T, props map[string]interface{}) object.Object {
	key, _ := keys.GenerateECDSAKey()
	o := object.Object{object.TypeField: "herald.Note"}
	for k, v := range props {
		o[k] = v
	}
	signed, err := object.Sign(context.Background(), keys.NewLocalSigner(key, keys.PurposeSign), o)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestPutGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !common.Is(err, common.NotFound) {
		t.Fatalf("missing object should fail with NotFound, got %v", err)
	}

	note := signedNote(t, map[string]interface{}{"text": "hello", "count": 3})

	link, err := s.Put(ctx, note)
	if err != nil {
		t.Fatal(err)
	}
	if link != note.String(object.LinkField) {
		t.Fatalf("Put should return the object's link")
	}

	again, err := s.Put(ctx, note)
	if err != nil || again != link {
		t.Fatalf("second Put should be a no-op, got %s, %v", again, err)
	}

	got, err := s.Get(ctx, link)
	if err != nil {
		t.Fatal(err)
	}
	if got.String(object.LinkField) != link {
		t.Fatalf("_link should be %s, not %s", link, got.String(object.LinkField))
	}
	if got.String(object.SigPubKeyField) != note.String(object.SigPubKeyField) {
		t.Fatalf("_sigPubKey should be restored")
	}
	if p, _ := object.Permalink(got); p != link {
		t.Fatalf("_permalink should be restored")
	}
	if n, _ := got.Int64("count"); n != 3 {
		t.Fatalf("count should be 3, not %d", n)
	}

	if err := s.Delete(ctx, link); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, link); !common.Is(err, common.NotFound) {
		t.Fatalf("deleted object should fail with NotFound, got %v", err)
	}
}

func TestGetLinkMismatch(t *testing.T) {
	s, blobs := newTestStore(t)
	ctx := context.Background()

	note := signedNote(t, map[string]interface{}{"text": "hello"})
	link, _ := s.Put(ctx, note)

	forged := note.Clone()
	forged["text"] = "goodbye"
	body, _ := object.BodyBytes(forged)
	blobs.Put(ctx, link, body)

	if _, err := s.Get(ctx, link); !common.Is(err, common.InvalidSignature) {
		t.Fatalf("tampered object should fail with InvalidSignature, got %v", err)
	}
}

func TestEmbeds(t *testing.T) {
	s, blobs := newTestStore(t)
	ctx := context.Background()

	note := signedNote(t, map[string]interface{}{
		"photo": photo,
		"attachments": []interface{}{
			map[string]interface{}{"name": "scan", "url": scan},
		},
		"text": "see attached",
	})

	link, err := s.Put(ctx, note)
	if err != nil {
		t.Fatal(err)
	}

	if note.String("photo") != photo {
		t.Fatalf("Put should not modify the caller's object")
	}

	raw, _ := blobs.Get(ctx, link)
	if strings.Contains(string(raw), "data:") {
		t.Fatalf("stored object should not contain data URIs: %s", raw)
	}
	if !strings.Contains(string(raw), EmbedPrefix) {
		t.Fatalf("stored object should contain embed pointers: %s", raw)
	}

	got, err := s.Get(ctx, link)
	if err != nil {
		t.Fatal(err)
	}
	if got.String("photo") != photo {
		t.Fatalf("photo should be resolved")
	}

	// Lose one embed: the rest of the object still resolves.
	scanHash := common.EncodeToString(crypto.SHA256([]byte(scan)))
	blobs.Delete(ctx, embedKey(scanHash))

	got, err = s.Get(ctx, link)
	var embedErr *EmbedError
	if !errors.As(err, &embedErr) {
		t.Fatalf("Get should fail with an EmbedError, got %v", err)
	}
	if len(embedErr.Paths) != 1 || embedErr.Paths[0] != "attachments.0.url" {
		t.Fatalf("EmbedError should name attachments.0.url, not %v", embedErr.Paths)
	}
	if got == nil || got.String("photo") != photo || got.String("text") != "see attached" {
		t.Fatalf("other properties should be resolved")
	}
}

func TestReplaceEmbedsCount(t *testing.T) {
	s, _ := newTestStore(t)

	o := object.Object{
		object.TypeField: "herald.Note",
		"a":              photo,
		"b":              []interface{}{scan, "plain"},
		"c":              map[string]interface{}{"d": photo},
	}

	n, err := s.ReplaceEmbeds(context.Background(), o)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("3 embeds should be replaced, not %d", n)
	}
	if !strings.HasPrefix(o.String("a"), EmbedPrefix) {
		t.Fatalf("a should be a pointer")
	}

	if err := s.ResolveEmbeds(context.Background(), o); err != nil {
		t.Fatal(err)
	}
	if o.String("a") != photo {
		t.Fatalf("a should be resolved")
	}
}
