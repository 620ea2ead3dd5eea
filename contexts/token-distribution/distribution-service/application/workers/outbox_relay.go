package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "merkledrop/contexts/token-distribution/distribution-service/application"
	"merkledrop/contexts/token-distribution/distribution-service/ports"
)

// OutboxRelay publishes lifecycle events appended alongside mirror writes.
// Keeping the bus out of the write path means a broker outage never blocks a
// creation or finalization.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	Topic     string
	BatchSize int
	Logger    *slog.Logger
}

func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}
	topic := r.Topic
	if topic == "" {
		topic = "distribution.lifecycle"
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("outbox list pending failed",
			"event", "distribution_outbox_list_failed",
			"module", "token-distribution/distribution-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	for _, message := range pending {
		var envelope ports.EventEnvelope
		if err := json.Unmarshal(message.Payload, &envelope); err != nil {
			logger.Error("outbox payload decode failed",
				"event", "distribution_outbox_decode_failed",
				"module", "token-distribution/distribution-service",
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Publisher.Publish(ctx, topic, envelope); err != nil {
			logger.Error("outbox publish failed",
				"event", "distribution_outbox_publish_failed",
				"module", "token-distribution/distribution-service",
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"event_type", envelope.EventType,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Outbox.MarkOutboxSent(ctx, message.OutboxID, now); err != nil {
			logger.Error("outbox mark sent failed",
				"event", "distribution_outbox_mark_sent_failed",
				"module", "token-distribution/distribution-service",
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"error", err.Error(),
			)
			return err
		}
	}

	if len(pending) > 0 {
		logger.Info("outbox relay cycle completed",
			"event", "distribution_outbox_relay_completed",
			"module", "token-distribution/distribution-service",
			"layer", "worker",
			"sent_count", len(pending),
		)
	}
	return nil
}
