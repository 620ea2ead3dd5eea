package ports

import (
	"context"
	"math/big"
	"time"

	"merkledrop/contexts/token-distribution/distribution-service/domain/entities"
	contractsv1 "merkledrop/contracts/gen/events/v1"
)

// ListFilter narrows distribution listings. Status is derived, so filtering
// on it happens in the query layer; the repository filters stored fields only.
type ListFilter struct {
	VaultType entities.VaultType
	Limit     int
	Offset    int
}

type Repository interface {
	// RecordDistribution writes a distribution and all of its leaves in one
	// transaction. Partial writes must never be observable.
	RecordDistribution(ctx context.Context, distribution entities.Distribution, leaves []entities.Leaf) error
	GetDistribution(ctx context.Context, distributionID uint64) (entities.Distribution, error)
	ListDistributions(ctx context.Context, filter ListFilter) ([]entities.Distribution, error)
	GetStats(ctx context.Context, now time.Time) (entities.DistributionStats, error)
	ListExpiredUnfinalized(ctx context.Context, now time.Time, limit int) ([]entities.Distribution, error)

	GetLeaf(ctx context.Context, distributionID uint64, address string) (entities.Leaf, error)
	// ListLeaves returns leaves ordered by leaf index; proof generation
	// rebuilds the tree and depends on the original order.
	ListLeaves(ctx context.Context, distributionID uint64) ([]entities.Leaf, error)
	// UpsertClaimState overwrites a leaf's cumulative claimed amount and
	// adjusts the distribution's running total in the same transaction.
	UpsertClaimState(ctx context.Context, distributionID uint64, address string, claimed *big.Int, txRef string, at time.Time) error

	UpdateLedgerState(ctx context.Context, distributionID uint64, totalClaimed *big.Int, finalized bool, at time.Time) error
	MarkFinalized(ctx context.Context, distributionID uint64, txRef string, at time.Time) error

	GetFinalizationAttempt(ctx context.Context, distributionID uint64) (entities.FinalizationAttempt, error)
	UpsertFinalizationAttempt(ctx context.Context, attempt entities.FinalizationAttempt) error
}

// SubmitReceipt is the distributor contract's confirmation of a new
// distribution.
type SubmitReceipt struct {
	DistributionID uint64
	StartTime      time.Time
	EndTime        time.Time
	TxRef          string
}

// LedgerState is the authoritative claim/finalization state read back from
// the distributor contract.
type LedgerState struct {
	TotalClaimed *big.Int
	Finalized    bool
}

// LedgerClient talks to the distributor contract. Every call either confirms
// or deterministically fails; pending state is never surfaced.
type LedgerClient interface {
	SubmitDistribution(ctx context.Context, merkleRoot [32]byte, total *big.Int, vault entities.VaultType, durationDays int) (SubmitReceipt, error)
	SubmitFinalize(ctx context.Context, distributionID uint64) (string, error)
	ReadDistribution(ctx context.Context, distributionID uint64) (LedgerState, error)
	ReadVaultRemaining(ctx context.Context, vault entities.VaultType) (*big.Int, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID    string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, event EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, at time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string, consumerGroup string, handler func(context.Context, EventEnvelope) error) error
}
