package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	application "merkledrop/contexts/token-distribution/distribution-service/application"
	"merkledrop/contexts/token-distribution/distribution-service/application/commands"
	domainerrors "merkledrop/contexts/token-distribution/distribution-service/domain/errors"
	"merkledrop/contexts/token-distribution/distribution-service/ports"
)

const defaultClaimTopic = "ledger.claim.recorded"

// ClaimedConsumer ingests claim events observed on the ledger and reflects
// them into the mirror. Payload amounts are the ledger's cumulative totals,
// so redelivery is harmless.
type ClaimedConsumer struct {
	Subscriber    ports.EventSubscriber
	Commands      commands.UseCase
	ConsumerGroup string
	Topic         string
	Logger        *slog.Logger
}

type claimRecordedPayload struct {
	DistributionID uint64 `json:"distribution_id"`
	Account        string `json:"account"`
	ClaimedAmount  string `json:"claimed_amount"`
	TxRef          string `json:"tx_ref"`
}

func (c ClaimedConsumer) Start(ctx context.Context) error {
	topic := c.Topic
	if topic == "" {
		topic = defaultClaimTopic
	}
	return c.Subscriber.Subscribe(ctx, topic, c.ConsumerGroup, c.handle)
}

func (c ClaimedConsumer) handle(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)

	var payload claimRecordedPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("claim event payload decode failed",
			"event", "distribution_claim_event_decode_failed",
			"module", "token-distribution/distribution-service",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return nil
	}

	err := c.Commands.ApplyClaim(ctx, commands.ApplyClaimCommand{
		DistributionID: payload.DistributionID,
		Address:        payload.Account,
		ClaimedAmount:  payload.ClaimedAmount,
		TxRef:          payload.TxRef,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domainerrors.ErrLeafNotFound),
		errors.Is(err, domainerrors.ErrInvalidAddress),
		errors.Is(err, domainerrors.ErrInvalidAmount),
		errors.Is(err, domainerrors.ErrClaimRegression),
		errors.Is(err, domainerrors.ErrClaimExceedsAllocation):
		// Bad or stale events are logged and dropped; redelivering them
		// cannot make them valid.
		logger.Warn("claim event rejected",
			"event", "distribution_claim_event_rejected",
			"module", "token-distribution/distribution-service",
			"layer", "worker",
			"event_id", event.EventID,
			"distribution_id", payload.DistributionID,
			"account", payload.Account,
			"error", err.Error(),
		)
		return nil
	default:
		return err
	}
}
