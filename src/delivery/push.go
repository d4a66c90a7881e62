package delivery

import (
	"context"

	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/net/wamp"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/sirupsen/logrus"
)

// Publisher publishes to a topic of the push realm. *wamp.Client implements
// it.
type Publisher interface {
	Publish(topic string, args ...interface{}) error
}

// PushTransport publishes envelopes on the private topics of a live client.
type PushTransport struct {
	publisher      Publisher
	topicPrefix    string
	maxPayloadSize int
	logger         *logrus.Entry
}

// NewPushTransport ...
func NewPushTransport(publisher Publisher, topicPrefix string, maxPayloadSize int, logger *logrus.Entry) *PushTransport {
	if maxPayloadSize <= 0 {
		maxPayloadSize = DefaultMaxPayloadSize
	}
	return &PushTransport{
		publisher:      publisher,
		topicPrefix:    topicPrefix,
		maxPayloadSize: maxPayloadSize,
		logger:         logger,
	}
}

// Name implements the Transport interface.
func (p *PushTransport) Name() string {
	return "push"
}

// Capabilities implements the Transport interface.
func (p *PushTransport) Capabilities() Capability {
	return CapDeliverBatch | CapAck | CapReject
}

func (p *PushTransport) checkTarget(target Target) error {
	if target.ClientID == "" {
		return common.Errorf("Target", common.InvalidInput, target.Recipient, "push needs a client id")
	}
	return nil
}

// DeliverBatch publishes envelopes in as many batches as the payload ceiling
// requires. Batches are published in order, and the first failure stops the
// rest.
func (p *PushTransport) DeliverBatch(ctx context.Context, target Target, envelopes []object.Object) error {
	if err := p.checkTarget(target); err != nil {
		return err
	}

	batches, err := Split(envelopes, p.maxPayloadSize)
	if err != nil {
		return err
	}

	topic := wamp.MessageTopic(p.topicPrefix, target.ClientID)

	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := p.publisher.Publish(topic, string(b)); err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"client_id": target.ClientID,
				"batch":     i,
				"batches":   len(batches),
			}).Error("Publishing batch")
			return err
		}
	}

	p.logger.WithFields(logrus.Fields{
		"client_id": target.ClientID,
		"envelopes": len(envelopes),
		"batches":   len(batches),
	}).Debug("Pushed envelopes")

	return nil
}

// Ack implements the Transport interface.
func (p *PushTransport) Ack(ctx context.Context, target Target, link string) error {
	if err := p.checkTarget(target); err != nil {
		return err
	}
	return p.publisher.Publish(wamp.AckTopic(p.topicPrefix, target.ClientID), link)
}

// Reject implements the Transport interface.
func (p *PushTransport) Reject(ctx context.Context, target Target, link string, reason error) error {
	if err := p.checkTarget(target); err != nil {
		return err
	}

	msg := ""
	if reason != nil {
		msg = reason.Error()
	}

	return p.publisher.Publish(wamp.RejectTopic(p.topicPrefix, target.ClientID), link, wamp.ErrRejected, msg)
}
