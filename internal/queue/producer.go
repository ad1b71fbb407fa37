package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/lalalland/topcoder-x-processor/internal/domain"
)

// EventMessage is the wire form of an event on the stream. The payload is the
// full JSON event; the flat fields exist so requeue/DLQ handling never has to
// decode the payload.
type EventMessage struct {
	EventType         string
	Provider          string
	Payload           []byte // JSON-encoded domain.Event
	Attempt           int
	PaymentSuccessful bool
	TraceID           string
}

type Producer interface {
	Enqueue(ctx context.Context, event *domain.Event, traceID string) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, event *domain.Event, traceID string) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	fields := map[string]any{
		"event_type": string(event.Type),
		"provider":   string(event.Provider),
		"payload":    string(payload),
		"attempt":    1,
	}
	if event.PaymentSuccessful {
		fields["payment_successful"] = "1"
	}
	if traceID != "" {
		fields["trace_id"] = traceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued event",
		"event_type", event.Type,
		"provider", event.Provider,
		"issue_number", event.Data.Issue.Number)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
