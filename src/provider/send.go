package provider

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/crypto/keys"
	"github.com/mosaicnetworks/herald/src/messages"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/mosaicnetworks/herald/src/retry"
	"github.com/sirupsen/logrus"
)

// SendRequest asks for a payload to be sent to a recipient. Exactly one of
// Object and Link must be set. An unsigned Object is signed by the provider.
type SendRequest struct {
	To     string
	Object object.Object
	Link   string
}

// SendResult ...
type SendResult struct {
	Envelope object.Object
	Payload  object.Object
	Stub     messages.Stub
}

func (r SendRequest) validate() error {
	if r.To == "" {
		return common.Errorf("SendRequest", common.InvalidInput, "", "missing recipient")
	}
	if (r.Object == nil) == (r.Link == "") {
		return common.Errorf("SendRequest", common.InvalidInput, r.To, "exactly one of object and link is required")
	}
	return nil
}

// Send persists the payload, then wraps it in an envelope carrying the next
// sequence number of the recipient's channel. The sequence is claimed with a
// conditional write; when a concurrent sender wins it, the tail is re-read
// and the envelope rebuilt. Once the envelope is stored, live delivery is
// attempted but its failure does not fail Send.
func (p *Provider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := req.validate(); err != nil {
		p.logger.WithError(err).Error("Invalid send request")
		return nil, err
	}

	logger := p.logger.WithField("to", req.To)

	payload, err := p.preparePayload(ctx, req)
	if err != nil {
		return nil, err
	}

	recipientPub, err := p.recipientKey(ctx, req.To)
	if err != nil {
		return nil, err
	}

	var (
		envelope object.Object
		stub     messages.Stub
	)

	policy := retry.Policy{
		MaxAttempts: p.conf.sendAttempts(),
		NewBackOff: func() backoff.BackOff {
			return &backoff.ZeroBackOff{}
		},
		Retryable: func(err error) bool {
			return common.Is(err, common.Conflict)
		},
		MinBudget: p.conf.MinBudget,
	}

	err = policy.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		envelope, stub, err = p.sequence(ctx, req.To, recipientPub, payload)
		if common.Is(err, common.Conflict) {
			p.metrics.Conflicts.Inc()
			logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"seq":     stub.Seq,
			}).Debug("Sequence conflict")
		}
		return err
	})

	if err != nil {
		if common.Is(err, common.Conflict) {
			logger.WithError(err).Warn("Sequencing retries exhausted")
			return nil, common.Errorf("Envelope", common.PutFailed, req.To, "%v", err).WithRetryable(true)
		}
		return nil, err
	}

	p.metrics.Sent.Inc()

	logger.WithFields(logrus.Fields{
		"seq":  stub.Seq,
		"link": stub.Link,
	}).Debug("Sent")

	envelope[object.EmbedField] = payload

	p.deliverLive(ctx, req.To, envelope)

	return &SendResult{
		Envelope: envelope,
		Payload:  payload,
		Stub:     stub,
	}, nil
}

// preparePayload resolves, signs if needed, and stores the payload.
func (p *Provider) preparePayload(ctx context.Context, req SendRequest) (object.Object, error) {
	if req.Link != "" {
		return p.objects.Get(ctx, req.Link)
	}

	payload := req.Object
	if payload.String(object.SigField) == "" {
		signed, err := p.SignObject(ctx, payload)
		if err != nil {
			return nil, err
		}
		payload = signed
	} else {
		payload = payload.Clone()
		object.StripDerived(payload)
		if err := p.directory.VerifyAuthenticity(ctx, payload); err != nil {
			return nil, err
		}
	}

	if _, err := p.objects.Put(ctx, payload); err != nil {
		return nil, err
	}

	return payload, nil
}

// recipientKey returns the signing key of the recipient's latest identity.
func (p *Provider) recipientKey(ctx context.Context, recipient string) (keys.PubKey, error) {
	doc, err := p.directory.GetByPermalink(ctx, recipient)
	if err != nil {
		return keys.PubKey{}, err
	}

	pubkeys, err := object.PubKeys(doc)
	if err != nil {
		return keys.PubKey{}, err
	}

	for _, pk := range pubkeys {
		if pk.Purpose == keys.PurposeSign {
			return pk, nil
		}
	}

	return keys.PubKey{}, common.Errorf("Identity", common.NotFound, recipient, "no %s key", keys.PurposeSign)
}

// sequence makes one attempt at building, signing and claiming the next
// envelope to recipient.
func (p *Provider) sequence(ctx context.Context, recipient string, recipientPub keys.PubKey, payload object.Object) (object.Object, messages.Stub, error) {
	last, err := p.sequencer.LastOutbound(ctx, recipient)
	switch {
	case common.Is(err, common.NotFound):
		last = messages.Stub{Seq: -1}
	case err != nil:
		return nil, messages.Stub{}, err
	}

	now := nowMillis(p.conf.clock())
	if now <= last.Time {
		now = last.Time + 1
	}

	unsigned := object.Object{
		object.TypeField: object.TypeMessage,
		object.SeqField:  last.Seq + 1,
		object.TimeField: now,
		object.RecipientPubKeyField: map[string]interface{}{
			"curve": recipientPub.Curve,
			"pub":   recipientPub.Pub,
		},
		object.PayloadLinkField: payload.String(object.LinkField),
	}
	if last.Link != "" {
		unsigned[object.PrevMsgLinkField] = last.Link
	}

	envelope, err := p.SignObject(ctx, unsigned)
	if err != nil {
		return nil, messages.Stub{}, err
	}
	envelope[object.RecipientField] = recipient

	stub, err := messages.StubFromEnvelope(envelope)
	if err != nil {
		return nil, messages.Stub{}, err
	}

	// The object goes first: an orphan envelope left by a lost race is
	// unreachable, a stub without its object is not.
	if _, err := p.objects.Put(ctx, envelope); err != nil {
		return nil, stub, err
	}

	if err := p.sequencer.PutOutbound(ctx, stub); err != nil {
		return nil, stub, err
	}

	return envelope, stub, nil
}

func (p *Provider) deliverLive(ctx context.Context, recipient string, envelope object.Object) {
	if p.deliverer == nil {
		return
	}

	if err := p.deliverer.DeliverLive(ctx, recipient, []object.Object{envelope}); err != nil {
		p.logger.WithError(err).WithField("to", recipient).Debug("Live delivery failed, message stays queued")
	}
}
