package identity

import (
	"context"
	"testing"

	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/crypto/keys"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/mosaicnetworks/herald/src/objects"
	"github.com/mosaicnetworks/herald/src/store"
)

type principal struct {
	update   *keys.LocalSigner
	sign     *keys.LocalSigner
	identity object.Object
}

func newPrincipal(t *testing.T) *principal {
	updateKey, _ := keys.GenerateECDSAKey()
	signKey, _ := keys.GenerateECDSAKey()

	p := &principal{
		update: keys.NewLocalSigner(updateKey, keys.PurposeUpdate),
		sign:   keys.NewLocalSigner(signKey, keys.PurposeSign),
	}

	identity, err := New(context.Background(), p.update, p.sign.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	p.identity = identity

	return p
}

func (p *principal) permalink() string {
	pl, _ := object.Permalink(p.identity)
	return pl
}

func newTestDirectory(t *testing.T, cache Cache) *Directory {
	logger := common.NewTestEntry(t, "identity")
	objs := objects.NewStore(store.NewInmemBlobStore(), logger)
	return NewDirectory(store.NewInmemKV(), objs, cache, logger)
}

func TestAddContact(t *testing.T) {
	d := newTestDirectory(t, nil)
	ctx := context.Background()
	alice := newPrincipal(t)

	if _, err := d.GetByPub(ctx, alice.sign.PublicKey().Pub); !common.Is(err, common.NotFound) {
		t.Fatalf("unknown key should fail with NotFound, got %v", err)
	}

	if err := d.AddContact(ctx, alice.identity); err != nil {
		t.Fatal(err)
	}

	for _, s := range []keys.Signer{alice.update, alice.sign} {
		m, err := d.GetByPub(ctx, s.PublicKey().Pub)
		if err != nil {
			t.Fatal(err)
		}
		expected := Mapping{
			Pub:       s.PublicKey().Pub,
			Link:      alice.identity.String(object.LinkField),
			Permalink: alice.permalink(),
		}
		if m != expected {
			t.Fatalf("mapping should be %+v, not %+v", expected, m)
		}
	}

	got, err := d.GetByPermalink(ctx, alice.permalink())
	if err != nil {
		t.Fatal(err)
	}
	if got.String(object.LinkField) != alice.identity.String(object.LinkField) {
		t.Fatalf("GetByPermalink should return the identity")
	}

	if _, err := d.GetByPermalink(ctx, "unknown"); !common.Is(err, common.NotFound) {
		t.Fatalf("unknown permalink should fail with NotFound, got %v", err)
	}
}

func TestValidateAndAdmit(t *testing.T) {
	d := newTestDirectory(t, nil)
	ctx := context.Background()
	alice := newPrincipal(t)

	if err := d.ValidateAndAdmit(ctx, alice.identity.Clone()); err != nil {
		t.Fatalf("new identity should be admitted, got %v", err)
	}
	if err := d.ValidateAndAdmit(ctx, alice.identity.Clone()); err != nil {
		t.Fatalf("known identity should be a no-op, got %v", err)
	}

	// Update with an extra key.
	extraKey, _ := keys.GenerateECDSAKey()
	extra := keys.NewLocalSigner(extraKey, keys.PurposeSign)

	v2, err := NewVersion(ctx, alice.identity, alice.update, alice.sign.PublicKey(), extra.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ValidateAndAdmit(ctx, v2.Clone()); err != nil {
		t.Fatalf("update should be admitted, got %v", err)
	}

	head, err := d.GetByPermalink(ctx, alice.permalink())
	if err != nil {
		t.Fatal(err)
	}
	if head.String(object.LinkField) != v2.String(object.LinkField) {
		t.Fatalf("permalink should resolve to the latest revision")
	}
	m, _ := d.GetByPub(ctx, extra.PublicKey().Pub)
	if m.Permalink != alice.permalink() {
		t.Fatalf("new key should map to alice")
	}

	// Replaying the first revision now collides with the update.
	if err := d.ValidateAndAdmit(ctx, alice.identity.Clone()); !common.Is(err, common.Collision) {
		t.Fatalf("stale revision should fail with Collision, got %v", err)
	}
}

func TestValidateAndAdmitRefusals(t *testing.T) {
	d := newTestDirectory(t, nil)
	ctx := context.Background()
	alice := newPrincipal(t)
	mallory := newPrincipal(t)

	if err := d.ValidateAndAdmit(ctx, alice.identity.Clone()); err != nil {
		t.Fatal(err)
	}

	// Mallory claims alice's signing key.
	spoof, err := New(ctx, mallory.update, alice.sign.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ValidateAndAdmit(ctx, spoof); !common.Is(err, common.Collision) {
		t.Fatalf("spoofed identity should fail with Collision, got %v", err)
	}

	// Mallory forges an update of alice's identity.
	hijack, err := NewVersion(ctx, alice.identity.Clone(), mallory.update, alice.sign.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ValidateAndAdmit(ctx, hijack); !common.Is(err, common.InvalidSignature) {
		t.Fatalf("forged update should fail with InvalidSignature, got %v", err)
	}

	// Identities must be signed by an update key.
	bad, err := object.Sign(ctx, mallory.sign, object.Object{
		object.TypeField:    object.TypeIdentity,
		object.PubKeysField: mallory.identity[object.PubKeysField],
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ValidateAndAdmit(ctx, bad); !common.Is(err, common.InvalidSignature) {
		t.Fatalf("identity signed by a sign key should fail with InvalidSignature, got %v", err)
	}

	note := object.Object{object.TypeField: "herald.Note"}
	if err := d.ValidateAndAdmit(ctx, note); !common.Is(err, common.InvalidInput) {
		t.Fatalf("non identity should fail with InvalidInput, got %v", err)
	}
}

func TestAddAuthorInfo(t *testing.T) {
	d := newTestDirectory(t, nil)
	ctx := context.Background()
	alice := newPrincipal(t)
	bob := newPrincipal(t)

	d.AddContact(ctx, alice.identity)
	d.AddContact(ctx, bob.identity)

	envelope, err := object.Sign(ctx, alice.sign, object.Object{
		object.TypeField: object.TypeMessage,
		object.SeqField:  0,
		object.TimeField: 1,
		object.RecipientPubKeyField: map[string]interface{}{
			"curve": keys.CurveName,
			"pub":   bob.sign.PublicKey().Pub,
		},
		object.PayloadLinkField: "abc",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := d.AddAuthorInfo(ctx, envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.String(object.AuthorField) != alice.permalink() {
		t.Fatalf("_author should be alice")
	}
	if envelope.String(object.RecipientField) != bob.permalink() {
		t.Fatalf("_recipient should be bob")
	}

	if err := d.VerifyAuthenticity(ctx, envelope); err != nil {
		t.Fatal(err)
	}

	stranger := newPrincipal(t)
	note, _ := object.Sign(ctx, stranger.sign, object.Object{object.TypeField: "herald.Note"})
	if err := d.AddAuthorInfo(ctx, note); !common.Is(err, common.NotFound) {
		t.Fatalf("unknown author should fail with NotFound, got %v", err)
	}
}

func TestCacheInvalidation(t *testing.T) {
	cache, err := NewLRUCache(16)
	if err != nil {
		t.Fatal(err)
	}
	d := newTestDirectory(t, cache)
	ctx := context.Background()
	alice := newPrincipal(t)

	d.AddContact(ctx, alice.identity)

	pub := alice.sign.PublicKey().Pub
	if _, err := d.GetByPub(ctx, pub); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.Get(pub); !ok {
		t.Fatalf("mapping should be cached")
	}

	v2, _ := NewVersion(ctx, alice.identity, alice.update, alice.sign.PublicKey())
	if err := d.AddContact(ctx, v2); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.Get(pub); ok {
		t.Fatalf("AddContact should invalidate cached mappings")
	}

	m, _ := d.GetByPub(ctx, pub)
	if m.Link != v2.String(object.LinkField) {
		t.Fatalf("mapping should point to the new revision")
	}
}

func TestValidateAndAdmitForgedPermalink(t *testing.T) {
	d := newTestDirectory(t, nil)
	ctx := context.Background()
	bob := newPrincipal(t)
	mallory := newPrincipal(t)

	if err := d.ValidateAndAdmit(ctx, bob.identity.Clone()); err != nil {
		t.Fatal(err)
	}

	// Mallory's own first revision, relabelled with bob's permalink outside
	// the signature.
	forged := mallory.identity.Clone()
	forged[object.PermalinkField] = bob.permalink()

	if err := d.ValidateAndAdmit(ctx, forged); err != nil {
		t.Fatalf("mallory's identity should be admitted under its own permalink, got %v", err)
	}

	m, err := d.GetByPub(ctx, mallory.sign.PublicKey().Pub)
	if err != nil {
		t.Fatal(err)
	}
	if m.Permalink != mallory.permalink() {
		t.Fatalf("mallory's key should map to %s, not %s", mallory.permalink(), m.Permalink)
	}

	head, err := d.GetByPermalink(ctx, bob.permalink())
	if err != nil {
		t.Fatal(err)
	}
	if head.String(object.LinkField) != bob.identity.String(object.LinkField) {
		t.Fatalf("bob's permalink should still resolve to bob")
	}

	// The same claim inside the signature breaks it.
	signed, err := object.Sign(ctx, mallory.update, object.Object{
		object.TypeField:      object.TypeIdentity,
		object.PubKeysField:   mallory.identity[object.PubKeysField],
		object.PermalinkField: bob.permalink(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ValidateAndAdmit(ctx, signed); err == nil {
		t.Fatalf("signed permalink claim without _prevlink should be refused")
	}

	// A revision of bob's identity hanging off an unknown predecessor.
	orphan, err := object.Sign(ctx, mallory.update, object.Object{
		object.TypeField:      object.TypeIdentity,
		object.PubKeysField:   mallory.identity[object.PubKeysField],
		object.PrevlinkField:  "0000",
		object.PermalinkField: bob.permalink(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ValidateAndAdmit(ctx, orphan); !common.Is(err, common.Collision) {
		t.Fatalf("revision not built on the head should fail with Collision, got %v", err)
	}

	stranger := newPrincipal(t)
	orphan, err = object.Sign(ctx, stranger.update, object.Object{
		object.TypeField:      object.TypeIdentity,
		object.PubKeysField:   stranger.identity[object.PubKeysField],
		object.PrevlinkField:  "0000",
		object.PermalinkField: stranger.permalink(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ValidateAndAdmit(ctx, orphan); !common.Is(err, common.NotFound) {
		t.Fatalf("revision of an unknown identity should fail with NotFound, got %v", err)
	}

	head, _ = d.GetByPermalink(ctx, bob.permalink())
	if head.String(object.LinkField) != bob.identity.String(object.LinkField) {
		t.Fatalf("bob's permalink should still resolve to bob")
	}
}

func TestValidateAndAdmitUpdateClaimingForeignKey(t *testing.T) {
	// Lookups race, so try both key orders several times.
	for i := 0; i < 20; i++ {
		d := newTestDirectory(t, nil)
		ctx := context.Background()
		bob := newPrincipal(t)
		mallory := newPrincipal(t)

		if err := d.ValidateAndAdmit(ctx, bob.identity.Clone()); err != nil {
			t.Fatal(err)
		}
		if err := d.ValidateAndAdmit(ctx, mallory.identity.Clone()); err != nil {
			t.Fatal(err)
		}

		extra := []keys.PubKey{mallory.sign.PublicKey(), bob.sign.PublicKey()}
		if i%2 == 1 {
			extra[0], extra[1] = extra[1], extra[0]
		}

		update, err := NewVersion(ctx, mallory.identity.Clone(), mallory.update, extra...)
		if err != nil {
			t.Fatal(err)
		}
		if err := d.ValidateAndAdmit(ctx, update); !common.Is(err, common.Collision) {
			t.Fatalf("update listing bob's key should fail with Collision, got %v", err)
		}

		m, err := d.GetByPub(ctx, bob.sign.PublicKey().Pub)
		if err != nil {
			t.Fatal(err)
		}
		if m.Permalink != bob.permalink() {
			t.Fatalf("bob's key should still map to bob")
		}
	}
}

func TestValidateAndAdmitKeyRotation(t *testing.T) {
	d := newTestDirectory(t, nil)
	ctx := context.Background()
	alice := newPrincipal(t)

	if err := d.ValidateAndAdmit(ctx, alice.identity.Clone()); err != nil {
		t.Fatal(err)
	}

	// v2 drops the signing key, v3 brings it back.
	v2, err := NewVersion(ctx, alice.identity.Clone(), alice.update)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ValidateAndAdmit(ctx, v2.Clone()); err != nil {
		t.Fatal(err)
	}

	v3, err := NewVersion(ctx, v2.Clone(), alice.update, alice.sign.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.ValidateAndAdmit(ctx, v3.Clone()); err != nil {
		t.Fatalf("rotating a key back in should be admitted, got %v", err)
	}

	m, _ := d.GetByPub(ctx, alice.sign.PublicKey().Pub)
	if m.Link != v3.String(object.LinkField) {
		t.Fatalf("signing key should map to the latest revision")
	}

	// v2 again is already known.
	if err := d.ValidateAndAdmit(ctx, v2.Clone()); !common.Is(err, common.Collision) {
		t.Fatalf("superseded revision should fail with Collision, got %v", err)
	}
}

func TestAddAuthorInfoMissingRecipient(t *testing.T) {
	d := newTestDirectory(t, nil)
	ctx := context.Background()
	alice := newPrincipal(t)

	envelope, err := object.Sign(ctx, alice.sign, object.Object{
		object.TypeField: object.TypeMessage,
		object.SeqField:  0,
		object.TimeField: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := d.AddAuthorInfo(ctx, envelope); !common.Is(err, common.InvalidMessageFormat) {
		t.Fatalf("envelope without recipient key should fail with InvalidMessageFormat, got %v", err)
	}
}
