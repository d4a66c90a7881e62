package wamp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/sirupsen/logrus"
)

// Server runs the WAMP router and the websocket server through which clients
// subscribe to their topics.
type Server struct {
	address    string
	router     router.Router
	httpServer *http.Server
	tls        bool
	listener   net.Listener
	logger     *logrus.Entry
}

// NewServer instantiates a new Server which can be run at a specified address.
// TLS is enabled when certFile is not empty.
func NewServer(address string,
	realm string,
	certFile string,
	keyFile string,
	logger *logrus.Entry) (*Server, error) {

	routerConfig := &router.Config{
		RealmConfigs: []*router.RealmConfig{
			{
				URI:           wamp.URI(realm),
				AnonymousAuth: true,
			},
		},
	}

	nxr, err := router.NewRouter(routerConfig, logger)
	if err != nil {
		return nil, err
	}

	wss := router.NewWebsocketServer(nxr)

	httpServer := &http.Server{
		Handler: wss,
		Addr:    address,
	}

	res := &Server{
		address:    address,
		router:     nxr,
		httpServer: httpServer,
		logger:     logger,
	}

	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			nxr.Close()
			return nil, fmt.Errorf("error loading X509 key pair: %s", err)
		}
		httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
		res.tls = true
	}

	return res, nil
}

// Listen binds the server address. It is called by Run if needed, and is
// exposed so that the bound address is known before serving.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}

	l, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	s.listener = l
	s.address = l.Addr().String()

	return nil
}

// Run serves websocket connections until Shutdown is called.
func (s *Server) Run() error {
	if err := s.Listen(); err != nil {
		s.logger.WithError(err).Error("Listen")
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"address": s.address,
		"tls":     s.tls,
	}).Debug("Serving WAMP router")

	var err error
	if s.tls {
		// The certificates are already loaded in the TLSConfig.
		err = s.httpServer.ServeTLS(s.listener, "", "")
	} else {
		err = s.httpServer.Serve(s.listener)
	}

	if err != nil && err != http.ErrServerClosed {
		s.logger.WithError(err).Error("Run")
		return err
	}

	return nil
}

// Shutdown stops the websocket server, and the wamp router
func (s *Server) Shutdown() {
	defer s.router.Close()

	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		s.logger.WithError(err).Error("Shutting down http server")
	}

	// Bound by Listen but maybe never served.
	if s.listener != nil {
		s.listener.Close()
	}
}

// Router returns the underlying router, to connect in-process clients.
func (s *Server) Router() router.Router {
	return s.router
}

// Addr returns the address of the server
func (s *Server) Addr() string {
	return s.address
}

// URL is the websocket URL clients connect to.
func (s *Server) URL() string {
	if s.tls {
		return fmt.Sprintf("wss://%s", s.address)
	}
	return fmt.Sprintf("ws://%s", s.address)
}
