package auth

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/crypto/keys"
	"github.com/mosaicnetworks/herald/src/identity"
	"github.com/mosaicnetworks/herald/src/messages"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/mosaicnetworks/herald/src/objects"
	"github.com/mosaicnetworks/herald/src/store"
)

type client struct {
	sign      *keys.LocalSigner
	permalink string
}

type testEnv struct {
	auth      *Auth
	directory *identity.Directory
	sequencer *messages.Sequencer
	clock     *clock.Mock
}

func newTestEnv(t *testing.T, issuer CapabilityIssuer) *testEnv {
	logger := common.NewTestEntry(t, "auth")
	kv := store.NewInmemKV()
	objs := objects.NewStore(store.NewInmemBlobStore(), logger)
	dir := identity.NewDirectory(kv, objs, nil, logger)
	seq := messages.NewSequencer(kv, logger)

	mock := clock.NewMock()
	mock.Set(time.Unix(1700000000, 0))

	return &testEnv{
		auth:      NewAuth(kv, dir, seq, issuer, mock, logger),
		directory: dir,
		sequencer: seq,
		clock:     mock,
	}
}

func (e *testEnv) newClient(t *testing.T) *client {
	updateKey, _ := keys.GenerateECDSAKey()
	signKey, _ := keys.GenerateECDSAKey()
	update := keys.NewLocalSigner(updateKey, keys.PurposeUpdate)
	sign := keys.NewLocalSigner(signKey, keys.PurposeSign)

	doc, err := identity.New(context.Background(), update, sign.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.directory.AddContact(context.Background(), doc); err != nil {
		t.Fatal(err)
	}

	permalink, _ := object.Permalink(doc)
	return &client{sign: sign, permalink: permalink}
}

func (c *client) respond(t *testing.T, challenge *Challenge, position *Position) object.Object {
	resp, err := object.Sign(context.Background(), c.sign, NewChallengeResponse(challenge, position))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHandshake(t *testing.T) {
	issuer := &StaticIssuer{Credentials: Credentials{Endpoint: "ws://localhost:8000/ws", Realm: "herald"}}
	env := newTestEnv(t, issuer)
	ctx := context.Background()
	alice := env.newClient(t)

	// something was already sent to alice
	sentStub := messages.Stub{Link: "l3", Seq: 3, Time: 1000, Recipient: alice.permalink}
	if err := env.sequencer.PutOutbound(ctx, sentStub); err != nil {
		t.Fatal(err)
	}

	challenge, err := env.auth.CreateChallenge(ctx, "client1", alice.permalink)
	if err != nil {
		t.Fatal(err)
	}
	if len(challenge.Challenge) != 2*ChallengeSize {
		t.Fatalf("challenge should be %d hex chars, not %d", 2*ChallengeSize, len(challenge.Challenge))
	}
	if challenge.Credentials == nil || challenge.Credentials.Realm != "herald" {
		t.Fatalf("challenge should carry issued credentials")
	}

	pending, err := env.auth.GetSession(ctx, "client1")
	if err != nil {
		t.Fatal(err)
	}
	if pending.Authenticated || pending.Connected {
		t.Fatalf("new session should be unauthenticated and disconnected")
	}

	env.clock.Add(10 * time.Second)

	clientPos := &Position{Received: &messages.Stub{Link: "l2", Seq: 2, Time: 900}}
	session, err := env.auth.HandleChallengeResponse(ctx, alice.respond(t, challenge, clientPos))
	if err != nil {
		t.Fatal(err)
	}

	if !session.Authenticated {
		t.Fatalf("session should be authenticated")
	}
	if session.ServerPosition == nil || session.ServerPosition.Sent == nil || *session.ServerPosition.Sent != sentStub {
		t.Fatalf("server position should be the last stub sent to alice, got %+v", session.ServerPosition)
	}
	if session.ClientPosition == nil || session.ClientPosition.Received == nil || session.ClientPosition.Received.Seq != 2 {
		t.Fatalf("client position should be recorded, got %+v", session.ClientPosition)
	}

	if len(session.Token) != 2*TokenSize {
		t.Fatalf("authenticated session should carry a %d hex chars token, got %q", 2*TokenSize, session.Token)
	}

	stored, _ := env.auth.GetSession(ctx, "client1")
	if !stored.Authenticated {
		t.Fatalf("authentication should be stored")
	}
	if stored.Token != "" || stored.TokenHash != hashToken(session.Token) {
		t.Fatalf("only the token hash should be stored, got %+v", stored)
	}

	// Replay of the same response.
	if _, err := env.auth.HandleChallengeResponse(ctx, alice.respond(t, challenge, nil)); !common.Is(err, common.HandshakeFailed) {
		t.Fatalf("replayed response should fail with HandshakeFailed, got %v", err)
	}
}

func TestHandshakeFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := env.newClient(t)
	mallory := env.newClient(t)

	if _, err := env.auth.CreateChallenge(ctx, "c0", "unknown"); !common.Is(err, common.NotFound) {
		t.Fatalf("unknown identity should fail with NotFound, got %v", err)
	}
	if _, err := env.auth.CreateChallenge(ctx, "", alice.permalink); !common.Is(err, common.InvalidInput) {
		t.Fatalf("missing client id should fail with InvalidInput, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(c *Challenge) (*client, *Challenge)
	}{
		{"wrong challenge", func(c *Challenge) (*client, *Challenge) {
			c2 := *c
			c2.Challenge = "00"
			return alice, &c2
		}},
		{"wrong permalink", func(c *Challenge) (*client, *Challenge) {
			c2 := *c
			c2.Permalink = mallory.permalink
			return mallory, &c2
		}},
		{"wrong signer", func(c *Challenge) (*client, *Challenge) {
			return mallory, c
		}},
		{"late", func(c *Challenge) (*client, *Challenge) {
			env.clock.Add(HandshakeTimeout + time.Second)
			return alice, c
		}},
	}

	for _, tc := range cases {
		challenge, err := env.auth.CreateChallenge(ctx, "client-"+tc.name, alice.permalink)
		if err != nil {
			t.Fatal(err)
		}

		signer, c := tc.mutate(challenge)

		_, err = env.auth.HandleChallengeResponse(ctx, signer.respond(t, c, nil))
		if !common.Is(err, common.HandshakeFailed) {
			t.Fatalf("%s: should fail with HandshakeFailed, got %v", tc.name, err)
		}

		s, _ := env.auth.GetSession(ctx, "client-"+tc.name)
		if s.Authenticated {
			t.Fatalf("%s: session should stay unauthenticated", tc.name)
		}
	}

	unknown := &Challenge{ClientID: "nobody", Permalink: alice.permalink, Challenge: "00"}
	if _, err := env.auth.HandleChallengeResponse(ctx, alice.respond(t, unknown, nil)); !common.Is(err, common.HandshakeFailed) {
		t.Fatalf("response without challenge should fail with HandshakeFailed, got %v", err)
	}
}

func TestLiveSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	sessions := []*Session{
		{ClientID: "a", Permalink: "p", Time: 1, Authenticated: true, Connected: true},
		{ClientID: "b", Permalink: "p", Time: 5, Authenticated: true, Connected: false},
		{ClientID: "c", Permalink: "p", Time: 3, Authenticated: true, Connected: true},
		{ClientID: "d", Permalink: "p", Time: 9, Authenticated: false, Connected: true},
		{ClientID: "e", Permalink: "other", Time: 10, Authenticated: true, Connected: true},
	}
	for _, s := range sessions {
		s.TokenHash = hashToken("tok-" + s.ClientID)
		if err := env.auth.putSession(ctx, s, nil); err != nil {
			t.Fatal(err)
		}
	}

	live, err := env.auth.GetLiveSessionByPermalink(ctx, "p")
	if err != nil {
		t.Fatal(err)
	}
	if live.ClientID != "c" {
		t.Fatalf("live session should be c, not %s", live.ClientID)
	}

	if _, err := env.auth.SetConnected(ctx, "c", "tok-c", false); err != nil {
		t.Fatal(err)
	}
	live, _ = env.auth.GetLiveSessionByPermalink(ctx, "p")
	if live.ClientID != "a" {
		t.Fatalf("live session should be a after c disconnects, not %s", live.ClientID)
	}

	if _, err := env.auth.SetConnected(ctx, "b", "tok-b", true); err != nil {
		t.Fatal(err)
	}
	live, _ = env.auth.GetLiveSessionByPermalink(ctx, "p")
	if live.ClientID != "b" {
		t.Fatalf("live session should be b after it connects, not %s", live.ClientID)
	}

	for _, id := range []string{"a", "b"} {
		env.auth.SetConnected(ctx, id, "tok-"+id, false)
	}
	if _, err := env.auth.GetLiveSessionByPermalink(ctx, "p"); !common.Is(err, common.NotFound) {
		t.Fatalf("no live session should fail with NotFound, got %v", err)
	}

	if err := env.auth.DeleteSession(ctx, "e"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.auth.GetSession(ctx, "e"); !common.Is(err, common.NotFound) {
		t.Fatalf("deleted session should fail with NotFound, got %v", err)
	}
	if _, err := env.auth.SetConnected(ctx, "e", "tok-e", true); !common.Is(err, common.NotFound) {
		t.Fatalf("SetConnected on a deleted session should fail with NotFound, got %v", err)
	}
}

func TestPresenceToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := env.newClient(t)

	challenge, err := env.auth.CreateChallenge(ctx, "client1", alice.permalink)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.auth.SetConnected(ctx, "client1", "", true); !common.Is(err, common.HandshakeFailed) {
		t.Fatalf("presence of a pending session should fail with HandshakeFailed, got %v", err)
	}

	session, err := env.auth.HandleChallengeResponse(ctx, alice.respond(t, challenge, nil))
	if err != nil {
		t.Fatal(err)
	}

	forged := []string{"", "00", session.Token[:len(session.Token)-2] + "00", session.TokenHash}
	for _, token := range forged {
		if _, err := env.auth.SetConnected(ctx, "client1", token, true); !common.Is(err, common.HandshakeFailed) {
			t.Fatalf("presence with token %q should fail with HandshakeFailed, got %v", token, err)
		}
	}

	s, _ := env.auth.GetSession(ctx, "client1")
	if s.Connected {
		t.Fatalf("rejected presence updates should not connect the session")
	}

	s, err = env.auth.SetConnected(ctx, "client1", session.Token, true)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Connected {
		t.Fatalf("session should be connected")
	}

	live, err := env.auth.GetLiveSessionByPermalink(ctx, alice.permalink)
	if err != nil {
		t.Fatal(err)
	}
	if live.ClientID != "client1" {
		t.Fatalf("live session should be client1, not %s", live.ClientID)
	}
}

func TestChallengeClaimsClientID(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := env.newClient(t)
	mallory := env.newClient(t)

	// A pending challenge can be asked again, by anyone.
	first, err := env.auth.CreateChallenge(ctx, "client1", alice.permalink)
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.auth.CreateChallenge(ctx, "client1", alice.permalink)
	if err != nil {
		t.Fatal(err)
	}
	if first.Challenge == second.Challenge {
		t.Fatalf("a new challenge should replace the pending one")
	}

	if _, err := env.auth.CreateChallenge(ctx, "client1", mallory.permalink); err != nil {
		t.Fatal(err)
	}
	sessions, err := env.auth.Sessions(ctx, alice.permalink)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Fatalf("pending session of alice should move to mallory, got %d left", len(sessions))
	}

	challenge, err := env.auth.CreateChallenge(ctx, "client1", alice.permalink)
	if err != nil {
		t.Fatal(err)
	}
	session, err := env.auth.HandleChallengeResponse(ctx, alice.respond(t, challenge, nil))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.auth.SetConnected(ctx, "client1", session.Token, true); err != nil {
		t.Fatal(err)
	}

	// Once authenticated, the client id is taken.
	for _, c := range []*client{mallory, alice} {
		if _, err := env.auth.CreateChallenge(ctx, "client1", c.permalink); !common.Is(err, common.HandshakeFailed) {
			t.Fatalf("challenge for a taken client id should fail with HandshakeFailed, got %v", err)
		}
	}

	s, err := env.auth.GetSession(ctx, "client1")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Authenticated || !s.Connected || s.Permalink != alice.permalink {
		t.Fatalf("authenticated session should be untouched, got %+v", s)
	}
	if s.TokenHash != hashToken(session.Token) {
		t.Fatalf("session token should be untouched")
	}
}
