package provider

import (
	"context"

	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/messages"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ReceiveResult ...
type ReceiveResult struct {
	Envelope object.Object
	Payload  object.Object
	Stub     messages.Stub
}

// Receive decodes and processes an envelope received on the wire.
func (p *Provider) Receive(ctx context.Context, wire []byte) (*ReceiveResult, error) {
	envelope, err := object.Unmarshal(wire)
	if err != nil {
		p.metrics.Received.WithLabelValues(resultRejected).Inc()
		return nil, common.Errorf("Envelope", common.InvalidMessageFormat, "", "%v", err)
	}
	return p.ReceiveObject(ctx, envelope)
}

// ReceiveObject validates an inbound envelope and its payload, and records
// them. The envelope must be addressed to the provider. A Duplicate error
// means the envelope was already accepted and should be acknowledged.
func (p *Provider) ReceiveObject(ctx context.Context, envelope object.Object) (*ReceiveResult, error) {
	res, err := p.receive(ctx, envelope)

	switch {
	case err == nil:
		p.metrics.Received.WithLabelValues(resultAccepted).Inc()
	case common.Is(err, common.Duplicate):
		p.metrics.Received.WithLabelValues(resultDuplicate).Inc()
	case common.IsRemote(err):
		p.metrics.Received.WithLabelValues(resultRejected).Inc()
		p.logger.WithError(err).Debug("Rejected inbound message")
	default:
		p.metrics.Received.WithLabelValues(resultError).Inc()
		p.logger.WithError(err).Error("Failed to process inbound message")
	}

	return res, err
}

func (p *Provider) receive(ctx context.Context, envelope object.Object) (*ReceiveResult, error) {
	envelope, payload, err := normalize(envelope)
	if err != nil {
		return nil, err
	}

	if err := p.admitIntroduction(ctx, payload); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := object.Stamp(envelope); err != nil {
			return err
		}
		if err := p.directory.AddAuthorInfo(gctx, envelope); err != nil {
			return err
		}
		return p.directory.VerifyAuthenticity(gctx, envelope)
	})

	g.Go(func() error {
		if err := p.objects.ResolveEmbeds(gctx, payload); err != nil {
			return err
		}
		if err := object.Stamp(payload); err != nil {
			return err
		}
		return p.directory.VerifyAuthenticity(gctx, payload)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	link := envelope.String(object.LinkField)

	if envelope.String(object.RecipientField) != p.permalink {
		return nil, common.Errorf("Envelope", common.InvalidMessageFormat, link, "addressed to %s", envelope.String(object.RecipientField))
	}

	if envelope.String(object.PayloadLinkField) != payload.String(object.LinkField) {
		return nil, common.Errorf("Envelope", common.InvalidSignature, link, "payload link mismatch")
	}

	stub, err := messages.StubFromEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	seen, err := p.sequencer.HasInbound(ctx, stub.Link)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, common.NewErr("Envelope", common.Duplicate, stub.Link)
	}

	if p.conf.EnforceTimeOrder {
		if err := p.checkTimeOrder(ctx, stub); err != nil {
			return nil, err
		}
	}

	// _inbound is derived: the object store never persists it. The inbox
	// index is the durable record of the classification, see IsInbound.
	envelope[object.InboundField] = true

	if _, err := p.objects.Put(ctx, envelope); err != nil {
		return nil, err
	}

	if err := p.sequencer.PutInbound(ctx, stub); err != nil {
		return nil, err
	}

	if _, err := p.objects.Put(ctx, payload); err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"from": stub.Author,
		"seq":  stub.Seq,
		"link": link,
	}).Debug("Received")

	envelope[object.EmbedField] = payload

	return &ReceiveResult{
		Envelope: envelope,
		Payload:  payload,
		Stub:     stub,
	}, nil
}

// IsInbound reports whether the envelope stored under link was received
// rather than sent. The classification is fixed at ingestion by the inbox
// index.
func (p *Provider) IsInbound(ctx context.Context, link string) (bool, error) {
	return p.sequencer.HasInbound(ctx, link)
}

// normalize checks the shape of an inbound envelope and separates it from its
// payload. Locally derived metadata sent by the remote party is dropped.
func normalize(wire object.Object) (object.Object, object.Object, error) {
	if wire.Type() != object.TypeMessage {
		return nil, nil, common.Errorf("Envelope", common.InvalidMessageFormat, "", "type is %q, not %q", wire.Type(), object.TypeMessage)
	}

	if wire.RecipientPub() == "" {
		return nil, nil, common.Errorf("Envelope", common.InvalidMessageFormat, "", "missing %s", object.RecipientPubKeyField)
	}

	for _, f := range []string{object.SeqField, object.TimeField} {
		if _, ok := wire.Int64(f); !ok {
			return nil, nil, common.Errorf("Envelope", common.InvalidMessageFormat, "", "missing %s", f)
		}
	}

	seq, _ := wire.Int64(object.SeqField)
	t, _ := wire.Int64(object.TimeField)
	if !messages.InRange(t, seq) {
		return nil, nil, common.Errorf("Envelope", common.InvalidMessageFormat, "", "seq %d time %d out of range", seq, t)
	}

	embedded, ok := wire.Object(object.EmbedField)
	if !ok {
		return nil, nil, common.Errorf("Envelope", common.InvalidMessageFormat, "", "missing payload")
	}

	envelope := wire.Clone()
	delete(envelope, object.EmbedField)
	object.StripDerived(envelope)

	payload := embedded.DeepClone()
	object.StripDerived(payload)

	return envelope, payload, nil
}

// admitIntroduction admits the identity a payload introduces, so that the
// author of the envelope can be resolved.
func (p *Provider) admitIntroduction(ctx context.Context, payload object.Object) error {
	var introduced object.Object

	switch payload.Type() {
	case object.TypeIdentity:
		introduced = payload.DeepClone()
	case object.TypeSelfIntroduction, object.TypeIntroduction:
		identity, ok := payload.Object(object.IdentityField)
		if !ok {
			return common.Errorf("Introduction", common.InvalidMessageFormat, "", "missing %s", object.IdentityField)
		}
		introduced = identity.DeepClone()
	default:
		return nil
	}

	return p.directory.ValidateAndAdmit(ctx, introduced)
}

// checkTimeOrder enforces that an author's messages have strictly increasing
// times.
func (p *Provider) checkTimeOrder(ctx context.Context, stub messages.Stub) error {
	last, err := p.sequencer.LastInbound(ctx, stub.Author)
	if common.Is(err, common.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if last.Link == stub.Link {
		return common.NewErr("Envelope", common.Duplicate, stub.Link)
	}

	if stub.Time <= last.Time {
		return common.Errorf("Envelope", common.TimeTravel, stub.Link, "time %d is not after %d", stub.Time, last.Time)
	}

	return nil
}
