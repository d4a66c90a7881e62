package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/crypto"
	"github.com/mosaicnetworks/herald/src/identity"
	"github.com/mosaicnetworks/herald/src/messages"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/mosaicnetworks/herald/src/store"
	"github.com/sirupsen/logrus"
)

// HandshakeTimeout is the time a client has to answer a challenge.
const HandshakeTimeout = 30 * time.Second

// ChallengeSize is the number of random bytes in a challenge.
const ChallengeSize = 32

// TokenSize is the number of random bytes in a session token.
const TokenSize = 32

func hashToken(token string) string {
	return common.EncodeToString(crypto.SHA256([]byte(token)))
}

func checkToken(hash string, token string) bool {
	if hash == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(hashToken(token))) == 1
}

func sessionPrefix(permalink string) string {
	return fmt.Sprintf("session_%s_", permalink)
}

func sessionKey(permalink, clientID string) string {
	return sessionPrefix(permalink) + clientID
}

func clientKey(clientID string) string {
	return fmt.Sprintf("client_%s", clientID)
}

// Auth runs the challenge/response handshake binding client connections to
// identities, and tracks the liveness of the resulting sessions.
type Auth struct {
	kv        store.KV
	directory *identity.Directory
	sequencer *messages.Sequencer
	issuer    CapabilityIssuer
	clock     clock.Clock
	logger    *logrus.Entry
}

// NewAuth returns an Auth. issuer may be nil, in which case challenges carry
// no credentials.
func NewAuth(
	kv store.KV,
	directory *identity.Directory,
	sequencer *messages.Sequencer,
	issuer CapabilityIssuer,
	clk clock.Clock,
	logger *logrus.Entry,
) *Auth {
	if clk == nil {
		clk = clock.New()
	}
	return &Auth{
		kv:        kv,
		directory: directory,
		sequencer: sequencer,
		issuer:    issuer,
		clock:     clk,
		logger:    logger,
	}
}

func (a *Auth) now() int64 {
	return a.clock.Now().UnixNano() / int64(time.Millisecond)
}

// CreateChallenge starts a handshake for a client claiming permalink. The
// session is stored unauthenticated and disconnected.
func (a *Auth) CreateChallenge(ctx context.Context, clientID string, permalink string) (*Challenge, error) {
	if clientID == "" || permalink == "" {
		return nil, common.Errorf("Challenge", common.InvalidInput, clientID, "clientId and permalink are required")
	}

	if _, err := a.directory.GetByPermalink(ctx, permalink); err != nil {
		return nil, err
	}

	nonce := make([]byte, ChallengeSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	session := &Session{
		ClientID:  clientID,
		Permalink: permalink,
		Challenge: common.EncodeToString(nonce),
		Time:      a.now(),
	}

	if err := a.claimSession(ctx, session); err != nil {
		return nil, err
	}

	challenge := &Challenge{
		ClientID:  clientID,
		Permalink: permalink,
		Challenge: session.Challenge,
		Time:      session.Time,
	}

	if a.issuer != nil {
		creds, err := a.issuer.Issue(ctx, clientID, permalink)
		if err != nil {
			a.logger.WithError(err).WithField("client", clientID).Error("Failed to issue credentials")
			return nil, err
		}
		challenge.Credentials = creds
	}

	a.logger.WithFields(logrus.Fields{
		"client":    clientID,
		"permalink": permalink,
	}).Debug("Created challenge")

	return challenge, nil
}

// HandleChallengeResponse completes a handshake. The response must echo the
// stored challenge and permalink, arrive within HandshakeTimeout, and be
// signed by a key of the claimed identity.
func (a *Auth) HandleChallengeResponse(ctx context.Context, resp object.Object) (*Session, error) {
	clientID := resp.String(ClientIDField)

	fail := func(format string, args ...interface{}) error {
		err := common.Errorf("Session", common.HandshakeFailed, clientID, format, args...)
		a.logger.WithError(err).Debug("Handshake failed")
		return err
	}

	if resp.Type() != object.TypeChallengeResponse || clientID == "" {
		return nil, fail("malformed challenge response")
	}

	session, raw, err := a.getSession(ctx, clientID)
	if err != nil {
		if common.Is(err, common.NotFound) {
			return nil, fail("no pending challenge")
		}
		return nil, err
	}

	if session.Authenticated {
		return nil, fail("challenge already answered")
	}
	if resp.String(ChallengeField) != session.Challenge {
		return nil, fail("challenge mismatch")
	}
	if resp.String(PermalinkField) != session.Permalink {
		return nil, fail("permalink mismatch")
	}
	if elapsed := time.Duration(a.now()-session.Time) * time.Millisecond; elapsed > HandshakeTimeout {
		return nil, fail("response after %v", elapsed)
	}

	signed := resp.DeepClone()
	object.StripDerived(signed)

	if err := object.Stamp(signed); err != nil {
		return nil, fail("%v", err)
	}
	if err := a.directory.VerifyAuthenticity(ctx, signed); err != nil {
		if common.IsRemote(err) {
			return nil, fail("%v", err)
		}
		return nil, err
	}
	if signed.String(object.AuthorField) != session.Permalink {
		return nil, fail("signature does not match claimed identity")
	}

	serverPosition, err := a.serverPosition(ctx, session.Permalink)
	if err != nil {
		return nil, err
	}

	token := make([]byte, TokenSize)
	if _, err := rand.Read(token); err != nil {
		return nil, err
	}

	session.Authenticated = true
	session.ServerPosition = serverPosition
	session.ClientPosition = positionFrom(resp[PositionField])
	session.TokenHash = hashToken(common.EncodeToString(token))

	if err := a.putSession(ctx, session, raw); err != nil {
		if common.Is(err, common.Conflict) {
			return nil, fail("session changed during the handshake")
		}
		return nil, err
	}

	session.Token = common.EncodeToString(token)

	a.logger.WithFields(logrus.Fields{
		"client":    clientID,
		"permalink": session.Permalink,
	}).Debug("Authenticated session")

	return session, nil
}

// serverPosition returns the last messages exchanged with permalink.
func (a *Auth) serverPosition(ctx context.Context, permalink string) (*Position, error) {
	pos := &Position{}

	sent, err := a.sequencer.LastOutbound(ctx, permalink)
	switch {
	case err == nil:
		pos.Sent = &sent
	case !common.Is(err, common.NotFound):
		return nil, err
	}

	received, err := a.sequencer.LastInbound(ctx, permalink)
	switch {
	case err == nil:
		pos.Received = &received
	case !common.Is(err, common.NotFound):
		return nil, err
	}

	return pos, nil
}

// SetConnected records a connection or disconnection of a client. token is
// the one issued with the authenticated session; presence of a session that
// is not authenticated, or with a wrong token, fails with HandshakeFailed.
func (a *Auth) SetConnected(ctx context.Context, clientID string, token string, connected bool) (*Session, error) {
	session, raw, err := a.getSession(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if !session.Authenticated {
		return nil, common.Errorf("Session", common.HandshakeFailed, clientID, "not authenticated")
	}
	if !checkToken(session.TokenHash, token) {
		a.logger.WithField("client", clientID).Debug("Presence update with a bad token")
		return nil, common.Errorf("Session", common.HandshakeFailed, clientID, "invalid session token")
	}

	if session.Connected == connected {
		return session, nil
	}

	session.Connected = connected

	if err := a.putSession(ctx, session, raw); err != nil {
		return nil, err
	}

	return session, nil
}

// GetSession ...
func (a *Auth) GetSession(ctx context.Context, clientID string) (*Session, error) {
	session, _, err := a.getSession(ctx, clientID)
	return session, err
}

func (a *Auth) getSession(ctx context.Context, clientID string) (*Session, []byte, error) {
	permalink, err := a.kv.Get(ctx, clientKey(clientID))
	if err != nil {
		if common.Is(err, common.NotFound) {
			return nil, nil, common.NewErr("Session", common.NotFound, clientID)
		}
		return nil, nil, err
	}

	raw, err := a.kv.Get(ctx, sessionKey(string(permalink), clientID))
	if err != nil {
		if common.Is(err, common.NotFound) {
			return nil, nil, common.NewErr("Session", common.NotFound, clientID)
		}
		return nil, nil, err
	}

	session, err := unmarshalSession(raw)
	if err != nil {
		a.logger.WithError(err).WithField("client", clientID).Error("Malformed session")
		return nil, nil, err
	}

	return session, raw, nil
}

// claimSession stores the pending session of a new challenge. A client id
// is claimed by its first challenge; while the handshake is pending a new
// challenge replaces the old one, but an authenticated session is never
// overwritten.
func (a *Auth) claimSession(ctx context.Context, session *Session) error {
	taken := func() error {
		return common.Errorf("Session", common.HandshakeFailed, session.ClientID, "client id is taken")
	}

	data, err := session.marshal()
	if err != nil {
		return err
	}

	writes := []store.Write{
		{Key: sessionKey(session.Permalink, session.ClientID), Value: data},
	}

	prev, raw, err := a.getSession(ctx, session.ClientID)
	switch {
	case common.Is(err, common.NotFound):
		writes = append(writes, store.Write{
			Key:   clientKey(session.ClientID),
			Value: []byte(session.Permalink),
			Cond:  store.IfAbsent,
		})
	case err != nil:
		return err
	case prev.Authenticated:
		return taken()
	default:
		if prev.Permalink == session.Permalink {
			writes[0].Cond = store.IfMatches
			writes[0].Expected = raw
		} else {
			writes = append(writes, store.Write{
				Key:      sessionKey(prev.Permalink, prev.ClientID),
				Delete:   true,
				Cond:     store.IfMatches,
				Expected: raw,
			})
		}
		writes = append(writes, store.Write{
			Key:      clientKey(session.ClientID),
			Value:    []byte(session.Permalink),
			Cond:     store.IfMatches,
			Expected: []byte(prev.Permalink),
		})
	}

	err = a.kv.PutAll(ctx, writes...)
	if common.Is(err, common.KeyAlreadyExists) || common.Is(err, common.Conflict) {
		return taken()
	}

	return err
}

// putSession writes session and its client index. When prev is set, the write
// only succeeds if the stored session is still prev.
func (a *Auth) putSession(ctx context.Context, session *Session, prev []byte) error {
	data, err := session.marshal()
	if err != nil {
		return err
	}

	w := store.Write{Key: sessionKey(session.Permalink, session.ClientID), Value: data}
	if prev != nil {
		w.Cond = store.IfMatches
		w.Expected = prev
	}

	return a.kv.PutAll(ctx, w, store.Write{
		Key:   clientKey(session.ClientID),
		Value: []byte(session.Permalink),
	})
}

// DeleteSession ...
func (a *Auth) DeleteSession(ctx context.Context, clientID string) error {
	session, _, err := a.getSession(ctx, clientID)
	if err != nil {
		return err
	}

	return a.kv.PutAll(ctx,
		store.Write{Key: sessionKey(session.Permalink, clientID), Delete: true},
		store.Write{Key: clientKey(clientID), Delete: true},
	)
}

// Sessions returns every session of permalink.
func (a *Auth) Sessions(ctx context.Context, permalink string) ([]*Session, error) {
	items, err := a.kv.Scan(ctx, store.ScanOptions{Prefix: sessionPrefix(permalink)})
	if err != nil {
		return nil, err
	}

	sessions := make([]*Session, 0, len(items))
	for _, item := range items {
		s, err := unmarshalSession(item.Value)
		if err != nil {
			a.logger.WithError(err).WithField("key", item.Key).Error("Malformed session")
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, nil
}

// GetLiveSessionByPermalink returns the most recent session of permalink that
// is both authenticated and connected.
func (a *Auth) GetLiveSessionByPermalink(ctx context.Context, permalink string) (*Session, error) {
	sessions, err := a.Sessions(ctx, permalink)
	if err != nil {
		return nil, err
	}

	var live *Session
	for _, s := range sessions {
		if !s.Live() {
			continue
		}
		if live == nil || s.Time > live.Time {
			live = s
		}
	}

	if live == nil {
		return nil, common.NewErr("Session", common.NotFound, permalink)
	}

	return live, nil
}
