package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lalalland/topcoder-x-processor/common/logger"
	"github.com/lalalland/topcoder-x-processor/internal/domain"
	"github.com/lalalland/topcoder-x-processor/internal/engine"
	"github.com/lalalland/topcoder-x-processor/internal/parser"
	"github.com/lalalland/topcoder-x-processor/internal/queue"
	"github.com/lalalland/topcoder-x-processor/internal/usermap"
)

type Config struct {
	MaxAttempts int
}

// Worker drains the event stream and feeds each event through the
// reconciliation engine. Events are handled one at a time to completion;
// concurrency safety for racing deliveries of the same issue lives in the
// record store's unique key, not here.
type Worker struct {
	consumer *queue.RedisConsumer
	engine   *engine.Engine
	users    usermap.Service
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer *queue.RedisConsumer, eng *engine.Engine, users usermap.Service, cfg Config) *Worker {
	return &Worker{
		consumer:  consumer,
		engine:    eng,
		users:     users,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		w.processMessageSafe(ctx, msg)
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID)
			w.handleFailure(ctx, msg, engine.Outcome{}, fmt.Errorf("panic: %v", r))
		}
	}()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: logger.Ptr(msg.ID),
		EventType: logger.Ptr(msg.EventType),
		Component: "tcx.worker",
	})

	outcome, err := w.processMessage(ctx, msg)
	if err != nil {
		w.handleFailure(ctx, msg, outcome, err)
		return
	}

	if ackErr := w.consumer.Ack(ctx, msg); ackErr != nil {
		// Message will be redelivered; every handler path is idempotent or
		// guarded by the record store, so that is safe.
		slog.WarnContext(ctx, "failed to ACK message", "error", ackErr)
	}
}

func (w *Worker) processMessage(ctx context.Context, msg queue.Message) (engine.Outcome, error) {
	slog.InfoContext(ctx, "processing message", "attempt", msg.Attempt)

	var event domain.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return engine.Outcome{}, fmt.Errorf("decoding event payload: %w", err)
	}

	// The stream-level flag wins over the payload: it reflects the outcome of
	// the previous delivery, the payload only what the webhook saw.
	event.PaymentSuccessful = event.PaymentSuccessful || msg.PaymentSuccessful

	copilot, err := w.users.GetRepositoryCopilot(ctx, event.Data.Repository.URL)
	if err != nil {
		return engine.Outcome{}, fmt.Errorf("resolving copilot: %w", err)
	}
	event.Copilot = copilot

	return w.engine.Process(ctx, &event)
}

// handleFailure routes a failed message. Transient failures are requeued with
// the sticky payment flag carried forward; everything else is terminal for
// the event and lands in the DLQ for inspection. Retrying a remote rejection
// would repeat non-idempotent tracker calls, so it is deliberately not done.
func (w *Worker) handleFailure(ctx context.Context, msg queue.Message, outcome engine.Outcome, err error) {
	var (
		validationErr *engine.ValidationError
		parseErr      *parser.ParseError
	)
	terminal := errors.As(err, &validationErr) || errors.As(err, &parseErr)

	if engine.IsTransient(err) && msg.Attempt < w.cfg.MaxAttempts && !terminal {
		slog.WarnContext(ctx, "requeuing message", "attempt", msg.Attempt, "error", err)
		if requeueErr := w.consumer.Requeue(ctx, msg, outcome.PaymentSuccessful, err.Error()); requeueErr != nil {
			slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
		}
		return
	}

	if outcome.PaymentSuccessful {
		// The payout completed; only a follow-up step failed. Never send a
		// paid event back through the pipeline without its sticky flag.
		slog.ErrorContext(ctx, "post-payment step failed, acking", "error", err)
		if ackErr := w.consumer.Ack(ctx, msg); ackErr != nil {
			slog.WarnContext(ctx, "failed to ACK paid message", "error", ackErr)
		}
		return
	}

	slog.ErrorContext(ctx, "message failed terminally, sending to DLQ",
		"attempt", msg.Attempt, "error", err)
	if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
		slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
	}
}
