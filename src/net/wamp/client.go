package wamp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io/ioutil"
	"os"
	"time"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/sirupsen/logrus"
)

// Handler receives the arguments of an event published on a subscribed topic.
type Handler func(args wamp.List)

// Client publishes to, and subscribes to, topics of the push realm.
type Client struct {
	routerURL string
	config    client.Config
	client    *client.Client
	logger    *logrus.Entry
}

// ClientOptions configure the connection to a remote router.
type ClientOptions struct {
	Realm              string
	CAFile             string
	InsecureSkipVerify bool
	ResponseTimeout    time.Duration
}

// NewClient opens a connection to the WAMP router at routerURL.
func NewClient(routerURL string, opts ClientOptions, logger *logrus.Entry) (*Client, error) {
	cfg := client.Config{
		Realm:           opts.Realm,
		ResponseTimeout: opts.ResponseTimeout,
		Logger:          logger,
	}

	tlscfg, err := loadTLSConfig(opts, logger)
	if err != nil {
		return nil, err
	}
	cfg.TlsCfg = tlscfg

	res := &Client{
		routerURL: routerURL,
		config:    cfg,
		logger:    logger,
	}

	if err := res.Connect(); err != nil {
		return nil, err
	}

	return res, nil
}

// NewLocalClient connects to a router running in the same process.
func NewLocalClient(r router.Router, realm string, logger *logrus.Entry) (*Client, error) {
	cfg := client.Config{
		Realm:  realm,
		Logger: logger,
	}

	cli, err := client.ConnectLocal(r, cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		config: cfg,
		client: cli,
		logger: logger,
	}, nil
}

func loadTLSConfig(opts ClientOptions, logger *logrus.Entry) (*tls.Config, error) {
	tlscfg := &tls.Config{}

	if opts.InsecureSkipVerify {
		logger.Debug("Skip Verify. Accepting any certificate provided by the router.")
		tlscfg.InsecureSkipVerify = true
		return tlscfg, nil
	}

	if opts.CAFile == "" {
		return tlscfg, nil
	}

	if _, err := os.Stat(opts.CAFile); os.IsNotExist(err) {
		logger.Debugf("No certificate file found. Relying on platform trusted certificates.")
		return tlscfg, nil
	}

	certPEM, err := ioutil.ReadFile(opts.CAFile)
	if err != nil {
		return nil, err
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(certPEM) {
		return nil, errors.New("Failed to import certificate to trust")
	}
	tlscfg.RootCAs = roots

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, errors.New("Failed to decode certificate to trust")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Trusting certificate %s with CN: %s", opts.CAFile, cert.Subject.CommonName)

	// Validate against the CN of the trusted cert, whatever the DNS name.
	tlscfg.ServerName = cert.Subject.CommonName

	return tlscfg, nil
}

// Connect connects to the router at routerURL. If the client is already
// connected, it does nothing.
func (c *Client) Connect() error {
	if c.client != nil && c.client.Connected() {
		return nil
	}

	if c.routerURL == "" {
		return errors.New("local client disconnected")
	}

	cli, err := client.ConnectNet(
		context.Background(),
		c.routerURL,
		c.config,
	)
	if err != nil {
		return err
	}

	c.client = cli

	return nil
}

// Publish publishes args to topic and waits for the router to acknowledge
// it.
func (c *Client) Publish(topic string, args ...interface{}) error {
	if err := c.Connect(); err != nil {
		return err
	}

	opts := wamp.Dict{"acknowledge": true}

	if err := c.client.Publish(topic, opts, wamp.List(args), nil); err != nil {
		c.logger.WithError(err).WithField("topic", topic).Error("Publish")
		return err
	}

	return nil
}

// Subscribe calls handler for every event published on topic.
func (c *Client) Subscribe(topic string, handler Handler) error {
	err := c.client.Subscribe(topic, func(event *wamp.Event) {
		handler(event.Arguments)
	}, nil)
	if err != nil {
		c.logger.WithError(err).WithField("topic", topic).Error("Failed to subscribe")
		return err
	}
	return nil
}

// Unsubscribe ...
func (c *Client) Unsubscribe(topic string) error {
	return c.client.Unsubscribe(topic)
}

// Close closes the connection to the router
func (c *Client) Close() error {
	return c.client.Close()
}
