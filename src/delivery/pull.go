package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/sirupsen/logrus"
)

// PullConfig tunes the pull transport.
type PullConfig struct {
	Timeout        time.Duration
	RetryMax       int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
	RateLimit      float64
	RateBurst      int
	MaxPayloadSize int
}

// DefaultPullConfig ...
func DefaultPullConfig() PullConfig {
	return PullConfig{
		Timeout:        10 * time.Second,
		RetryMax:       3,
		RetryWaitMin:   200 * time.Millisecond,
		RetryWaitMax:   2 * time.Second,
		RateLimit:      10,
		RateBurst:      20,
		MaxPayloadSize: 1024 * 1024,
	}
}

// PullTransport posts batches of envelopes to the inbox of a friend
// provider.
type PullTransport struct {
	client         *retryablehttp.Client
	limiter        *endpointLimiter
	maxPayloadSize int
	logger         *logrus.Entry
}

// NewPullTransport ...
func NewPullTransport(conf PullConfig, logger *logrus.Entry) *PullTransport {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = conf.Timeout
	client.RetryMax = conf.RetryMax
	client.RetryWaitMin = conf.RetryWaitMin
	client.RetryWaitMax = conf.RetryWaitMax
	client.Logger = &leveledLogger{logger}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	maxSize := conf.MaxPayloadSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPayloadSize
	}

	return &PullTransport{
		client:         client,
		limiter:        newEndpointLimiter(conf.RateLimit, conf.RateBurst, 0),
		maxPayloadSize: maxSize,
		logger:         logger,
	}
}

// Name implements the Transport interface.
func (p *PullTransport) Name() string {
	return "pull"
}

// Capabilities implements the Transport interface.
func (p *PullTransport) Capabilities() Capability {
	return CapDeliverBatch
}

// DeliverBatch posts envelopes to target.Endpoint, which is the full inbox
// URL, in as many requests as the payload ceiling requires.
func (p *PullTransport) DeliverBatch(ctx context.Context, target Target, envelopes []object.Object) error {
	if target.Endpoint == "" {
		return common.Errorf("Target", common.InvalidInput, target.Recipient, "pull needs an endpoint")
	}

	batches, err := Split(envelopes, p.maxPayloadSize)
	if err != nil {
		return err
	}

	for _, b := range batches {
		if err := p.post(ctx, target.Endpoint, b); err != nil {
			return err
		}
	}

	p.logger.WithFields(logrus.Fields{
		"endpoint":  target.Endpoint,
		"envelopes": len(envelopes),
		"batches":   len(batches),
	}).Debug("Posted envelopes")

	return nil
}

func (p *PullTransport) post(ctx context.Context, endpoint string, body []byte) error {
	if err := p.limiter.Wait(ctx, endpoint); err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.WithError(err).WithField("endpoint", endpoint).Error("Posting batch")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg, _ := ioutil.ReadAll(resp.Body)

	p.logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"status":   resp.StatusCode,
	}).Error("Inbox refused batch")

	// 5xx made it through the retries; 4xx is final.
	return common.Errorf("Inbox", common.InvalidInput, endpoint, "status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)).
		WithRetryable(resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
}

// Ack implements the Transport interface.
func (p *PullTransport) Ack(ctx context.Context, target Target, link string) error {
	return ErrUnsupported
}

// Reject implements the Transport interface.
func (p *PullTransport) Reject(ctx context.Context, target Target, link string, reason error) error {
	return ErrUnsupported
}

// leveledLogger routes retryablehttp logs to logrus.
type leveledLogger struct {
	logger *logrus.Entry
}

func (l *leveledLogger) fields(keysAndValues []interface{}) *logrus.Entry {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return l.logger.WithFields(f)
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.fields(keysAndValues).Error(msg)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.fields(keysAndValues).Info(msg)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.fields(keysAndValues).Debug(msg)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.fields(keysAndValues).Warn(msg)
}
