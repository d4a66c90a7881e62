package service

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/herald/src/auth"
	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/delivery"
	"github.com/mosaicnetworks/herald/src/messages"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/mosaicnetworks/herald/src/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// MaxBodySize bounds the requests accepted by the service.
const MaxBodySize = 4 * 1024 * 1024

// CatchUpTimeout bounds a catch-up sweep started by a client connecting.
const CatchUpTimeout = time.Minute

// Service exposes the inbox and the auth handshake over HTTP.
type Service struct {
	bindAddress string
	mux         *http.ServeMux
	server      *http.Server
	provider    *provider.Provider
	auth        *auth.Auth
	selector    *delivery.Selector
	gatherer    prometheus.Gatherer
	catchUps    sync.WaitGroup
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string,
	p *provider.Provider,
	a *auth.Auth,
	selector *delivery.Selector,
	gatherer prometheus.Gatherer,
	logger *logrus.Entry) *Service {

	service := &Service{
		bindAddress: bindAddress,
		mux:         http.NewServeMux(),
		provider:    p,
		auth:        a,
		selector:    selector,
		gatherer:    gatherer,
		logger:      logger,
	}

	service.registerHandlers()

	service.server = &http.Server{
		Addr:    bindAddress,
		Handler: service.mux,
	}

	return service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.mux.HandleFunc("/inbox", s.makeHandler(http.MethodPost, s.PostInbox))
	s.mux.HandleFunc("/auth/preauth", s.makeHandler(http.MethodPost, s.PostPreauth))
	s.mux.HandleFunc("/auth/presence", s.makeHandler(http.MethodPost, s.PostPresence))
	s.mux.HandleFunc("/auth", s.makeHandler(http.MethodPost, s.PostAuth))
	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Service) makeHandler(method string, fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

		fn(w, r)
	}
}

// Handler returns the handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
		return err
	}
	return nil
}

// Shutdown stops the server and waits for running catch-up sweeps.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.catchUps.Wait()
	return err
}

// InboxResult is the outcome of one envelope posted to the inbox.
type InboxResult struct {
	Link   string `json:"link,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Inbox result statuses.
const (
	StatusAccepted  = "accepted"
	StatusDuplicate = "duplicate"
	StatusRejected  = "rejected"
)

// PostInbox receives a batch of envelopes. Every envelope is accepted, found
// duplicate, or rejected on its own. If any envelope fails for an internal
// reason the whole request fails with 503, so that the sender retries the
// batch; the envelopes already accepted then come back as duplicates.
func (s *Service) PostInbox(w http.ResponseWriter, r *http.Request) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	batch, err := delivery.DecodeBatch(body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	results := make([]InboxResult, 0, len(batch))

	for _, envelope := range batch {
		res, err := s.provider.ReceiveObject(r.Context(), envelope)

		switch {
		case err == nil:
			results = append(results, InboxResult{
				Link:   res.Envelope.String(object.LinkField),
				Status: StatusAccepted,
			})
		case common.Is(err, common.Duplicate):
			results = append(results, InboxResult{
				Link:   envelope.String(object.LinkField),
				Status: StatusDuplicate,
			})
		case common.IsRemote(err):
			results = append(results, InboxResult{
				Link:   envelope.String(object.LinkField),
				Status: StatusRejected,
				Error:  err.Error(),
			})
		default:
			s.writeError(w, err)
			return
		}
	}

	s.writeJSON(w, results)
}

// PreauthRequest announces the identity a client is about to prove.
type PreauthRequest struct {
	ClientID  string `json:"clientId"`
	Permalink string `json:"permalink"`
}

// PostPreauth creates a challenge. A client id is generated if the client
// did not bring one.
func (s *Service) PostPreauth(w http.ResponseWriter, r *http.Request) {
	var req PreauthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.ClientID == "" {
		req.ClientID = uuid.New().String()
	}

	challenge, err := s.auth.CreateChallenge(r.Context(), req.ClientID, req.Permalink)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, challenge)
}

// PostAuth verifies a signed challenge response.
func (s *Service) PostAuth(w http.ResponseWriter, r *http.Request) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := object.Unmarshal(body)
	if err != nil {
		http.Error(w, "malformed challenge response", http.StatusBadRequest)
		return
	}

	session, err := s.auth.HandleChallengeResponse(r.Context(), resp)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, session)
}

// PresenceRequest reports a client connecting to or leaving the push realm.
// Token is the one returned by POST /auth.
type PresenceRequest struct {
	ClientID  string `json:"clientId"`
	Token     string `json:"token"`
	Connected bool   `json:"connected"`
}

// PostPresence toggles the connected flag of a session. When an
// authenticated client connects, the messages it missed are pushed to it in
// the background.
func (s *Service) PostPresence(w http.ResponseWriter, r *http.Request) {
	var req PresenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, err := s.auth.SetConnected(r.Context(), req.ClientID, req.Token, req.Connected)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if session.Live() && s.selector != nil {
		s.catchUps.Add(1)
		go func() {
			defer s.catchUps.Done()
			s.catchUp(session)
		}()
	}

	s.writeJSON(w, session)
}

func (s *Service) catchUp(session *auth.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), CatchUpTimeout)
	defer cancel()

	var cursor messages.Cursor
	if p := session.ClientPosition; p != nil && p.Received != nil {
		cursor = p.Received.Cursor()
	}

	target := delivery.Target{ClientID: session.ClientID}

	next, err := s.selector.CatchUp(ctx, session.Permalink, cursor, target)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"client": session.ClientID,
			"seq":    next.Seq,
		}).Debug("Catch-up stopped")
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Encoding response")
	}
}

// writeError reports protocol violations to the caller as they are. Anything
// else is logged and hidden behind a generic 503.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	if common.IsRemote(err) {
		status := http.StatusBadRequest
		switch {
		case common.Is(err, common.NotFound):
			status = http.StatusNotFound
		case common.Is(err, common.HandshakeFailed):
			status = http.StatusUnauthorized
		}
		http.Error(w, err.Error(), status)
		return
	}

	if common.Is(err, common.InvalidInput) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.WithError(err).Error("Request failed")
	http.Error(w, "service unavailable, try again", http.StatusServiceUnavailable)
}
