package herald

import (
	"context"
	"io/ioutil"
	"os"
	"testing"

	"github.com/mosaicnetworks/herald/src/config"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/mosaicnetworks/herald/src/provider"
)

func newTestConfig(t *testing.T) (*config.Config, func()) {
	dir, err := ioutil.TempDir("", "herald")
	if err != nil {
		t.Fatal(err)
	}

	conf := config.NewTestConfig(t)
	conf.SetDataDir(dir)
	conf.ServiceAddr = ""
	conf.PushAddr = "127.0.0.1:0"

	return conf, func() { os.RemoveAll(dir) }
}

func TestInitGeneratesIdentity(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()

	engine := NewHerald(conf)
	if err := engine.Init(); err != nil {
		t.Fatal(err)
	}
	permalink := engine.Provider.Permalink()
	engine.Shutdown()

	for _, f := range []string{conf.Keyfile(), conf.UpdateKeyfile(), conf.IdentityFile()} {
		if _, err := os.Stat(f); err != nil {
			t.Fatalf("%s should exist: %v", f, err)
		}
	}

	// Same data dir, same identity
	engine2 := NewHerald(conf)
	if err := engine2.Init(); err != nil {
		t.Fatal(err)
	}
	defer engine2.Shutdown()

	if engine2.Provider.Permalink() != permalink {
		t.Fatalf("permalink should be %s, not %s", permalink, engine2.Provider.Permalink())
	}
}

func TestKeygenRefusesOverwrite(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()

	if _, err := Keygen(conf); err != nil {
		t.Fatal(err)
	}
	if _, err := Keygen(conf); err == nil {
		t.Fatal("a second Keygen should fail")
	}
}

func TestEncryptedKeys(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()

	conf.Passphrase = "correct horse"
	conf.NoPush = true

	if _, err := Keygen(conf); err != nil {
		t.Fatal(err)
	}

	engine := NewHerald(conf)
	if err := engine.Init(); err != nil {
		t.Fatal(err)
	}
	engine.Shutdown()

	conf.Passphrase = "wrong"
	engine = NewHerald(conf)
	if err := engine.Init(); err == nil {
		engine.Shutdown()
		t.Fatal("Init with the wrong passphrase should fail")
	}
}

// Two persistent nodes, friends of each other: a message sent by one is
// posted to the inbox of the other.
func TestPullBetweenNodes(t *testing.T) {
	ctx := context.Background()

	confA, cleanupA := newTestConfig(t)
	defer cleanupA()
	confB, cleanupB := newTestConfig(t)
	defer cleanupB()

	confA.Store = true
	confB.Store = true
	confA.NoPush = true
	confB.NoPush = true
	confB.ServiceAddr = "127.0.0.1:0"

	a := NewHerald(confA)
	if err := a.Init(); err != nil {
		t.Fatal(err)
	}
	defer a.Shutdown()

	b := NewHerald(confB)
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}
	defer b.Shutdown()

	server := newTestServer(b)
	defer server.Close()

	if err := a.Directory.AddContact(ctx, b.Provider.Identity().DeepClone()); err != nil {
		t.Fatal(err)
	}
	if err := b.Directory.AddContact(ctx, a.Provider.Identity().DeepClone()); err != nil {
		t.Fatal(err)
	}

	addFriend(t, a, b.Provider.Permalink(), server.URL)

	res, err := a.Provider.Send(ctx, provider.SendRequest{
		To:     b.Provider.Permalink(),
		Object: object.Object{object.TypeField: "herald.Note", "text": "hello b"},
	})
	if err != nil {
		t.Fatal(err)
	}

	ok, err := b.Sequencer.HasInbound(ctx, res.Envelope.String(object.LinkField))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("b should have received the envelope through its inbox")
	}

	payload, err := b.Objects.Get(ctx, res.Payload.String(object.LinkField))
	if err != nil {
		t.Fatal(err)
	}
	if payload.String("text") != "hello b" {
		t.Fatalf("payload text should be 'hello b', not %s", payload.String("text"))
	}
}
