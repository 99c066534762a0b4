package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/cellsync/fiscal_backend/config"
	"github.com/cellsync/fiscal_backend/reconcile"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("nfe-events")

const EventNfeImported = "nfe.imported"

// PubSubPublisher announces committed NF-e imports on one topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	timeout time.Duration
}

// NewPubSubPublisherFromEnv returns (nil, nil) when NFE_IMPORTED_TOPIC is unset.
func NewPubSubPublisherFromEnv(ctx context.Context) (*PubSubPublisher, error) {
	topicName := config.ImportedTopicName()
	if topicName == "" {
		return nil, nil
	}
	client, err := config.GetClient(ctx)
	if err != nil {
		return nil, err
	}
	topic, err := config.CreateTopicIfNotExists(ctx, client, topicName)
	if err != nil {
		return nil, err
	}
	return &PubSubPublisher{topic: topic, timeout: 30 * time.Second}, nil
}

func (p *PubSubPublisher) PublishImported(ctx context.Context, ev reconcile.ImportedEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub publisher not initialized")
	}
	msg, err := NewImportedMessage(ev)
	if err != nil {
		return err
	}
	// the import is already committed; don't let a cancelled request drop the event
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "pubsub.publish "+EventNfeImported,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", p.topic.ID()),
			attribute.String("tenant_id", ev.TenantId),
			attribute.String("nfe.key", ev.InvoiceKey),
		))
	defer span.End()

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.String("messaging.message.id", id))
	return nil
}

func (p *PubSubPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

// NewImportedMessage builds the wire message; attributes allow subscription filters per tenant.
func NewImportedMessage(ev reconcile.ImportedEvent) (*pubsub.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	attrs := map[string]string{
		"event":       EventNfeImported,
		"tenant_id":   ev.TenantId,
		"invoice_key": ev.InvoiceKey,
	}
	if ev.CorrelationId != "" {
		attrs["correlation_id"] = ev.CorrelationId
	}
	return &pubsub.Message{Data: data, Attributes: attrs}, nil
}
