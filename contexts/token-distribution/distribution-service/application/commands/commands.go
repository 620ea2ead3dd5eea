package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	application "merkledrop/contexts/token-distribution/distribution-service/application"
	"merkledrop/contexts/token-distribution/distribution-service/domain/allocation"
	"merkledrop/contexts/token-distribution/distribution-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/distribution-service/domain/errors"
	"merkledrop/contexts/token-distribution/distribution-service/domain/merkle"
	"merkledrop/contexts/token-distribution/distribution-service/ports"
	"merkledrop/internal/platform/metrics"
)

const (
	defaultLedgerTimeout = 2 * time.Minute
	sourceService        = "distribution-service"
)

// Backoff defaults are product choices, not correctness requirements; the
// bootstrap overrides them from configuration.
var DefaultRetrySchedule = []time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour}

const DefaultMaxRetries = 3

type CreateDistributionCommand struct {
	Allocations  []allocation.Input
	VaultType    string
	DurationDays int
	Metadata     string
}

type FinalizeCommand struct {
	DistributionID uint64
	ExecutionType  entities.ExecutionType
}

type ApplyClaimCommand struct {
	DistributionID uint64
	Address        string
	ClaimedAmount  string
	TxRef          string
}

type UseCase struct {
	Repository ports.Repository
	Ledger     ports.LedgerClient
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Outbox     ports.OutboxWriter
	Logger     *slog.Logger

	// LedgerTimeout bounds every call into the distributor contract; a
	// timeout is a local failure to retry later, never an indefinite hang.
	LedgerTimeout time.Duration
	RetrySchedule []time.Duration
}

// CreateDistribution validates the allocation list, builds the commitment
// tree, submits the root to the ledger and, only after confirmation, writes
// the mirror. A ledger failure leaves the mirror untouched.
func (uc UseCase) CreateDistribution(ctx context.Context, cmd CreateDistributionCommand) (entities.Distribution, error) {
	logger := application.ResolveLogger(uc.Logger)

	vault := entities.VaultType(strings.ToLower(strings.TrimSpace(cmd.VaultType)))
	if !vault.Valid() {
		logger.Warn("distribution create invalid vault type",
			"event", "distribution_create_invalid_vault",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"vault_type", string(vault),
		)
		return entities.Distribution{}, domainerrors.ErrInvalidVaultType
	}
	if cmd.DurationDays <= 0 {
		return entities.Distribution{}, domainerrors.ErrInvalidDuration
	}

	allocations, total, err := allocation.Canonicalize(cmd.Allocations)
	if err != nil {
		logger.Warn("distribution create allocation validation failed",
			"event", "distribution_create_validation_failed",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"entry_count", len(cmd.Allocations),
			"error", err.Error(),
		)
		return entities.Distribution{}, err
	}

	tree, err := merkle.BuildTree(allocations)
	if err != nil {
		return entities.Distribution{}, err
	}

	ledgerCtx, cancel := uc.ledgerContext(ctx)
	defer cancel()

	remaining, err := uc.Ledger.ReadVaultRemaining(ledgerCtx, vault)
	if err != nil {
		logger.Error("distribution create vault balance read failed",
			"event", "distribution_create_vault_read_failed",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"vault_type", string(vault),
			"error", err.Error(),
		)
		return entities.Distribution{}, fmt.Errorf("%w: read vault remaining: %v", domainerrors.ErrLedgerSubmission, err)
	}
	if remaining.Cmp(total) < 0 {
		logger.Warn("distribution create vault balance insufficient",
			"event", "distribution_create_vault_insufficient",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"vault_type", string(vault),
			"total_allocated", total.String(),
			"vault_remaining", remaining.String(),
		)
		return entities.Distribution{}, domainerrors.ErrInsufficientVaultBalance
	}

	receipt, err := uc.Ledger.SubmitDistribution(ledgerCtx, tree.Root, total, vault, cmd.DurationDays)
	if err != nil {
		logger.Error("distribution create ledger submission failed",
			"event", "distribution_create_submission_failed",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"vault_type", string(vault),
			"merkle_root", tree.Root.Hex(),
			"error", err.Error(),
		)
		return entities.Distribution{}, fmt.Errorf("%w: %v", domainerrors.ErrLedgerSubmission, err)
	}

	now := uc.now()
	distribution := entities.Distribution{
		ID:             receipt.DistributionID,
		MerkleRoot:     tree.Root.Hex(),
		VaultType:      vault,
		TotalAllocated: total,
		TotalClaimed:   new(big.Int),
		RecipientCount: len(tree.Leaves),
		StartTime:      receipt.StartTime.UTC(),
		EndTime:        receipt.EndTime.UTC(),
		SubmitTxRef:    receipt.TxRef,
		Metadata:       strings.TrimSpace(cmd.Metadata),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	leaves := make([]entities.Leaf, len(tree.Leaves))
	for i, leaf := range tree.Leaves {
		leaves[i] = entities.Leaf{
			DistributionID:  receipt.DistributionID,
			Address:         strings.ToLower(leaf.Address.Hex()),
			AllocatedAmount: leaf.Amount,
			LeafHash:        leaf.Hash.Hex(),
			LeafIndex:       leaf.Index,
			ClaimedAmount:   new(big.Int),
		}
	}

	if err := uc.Repository.RecordDistribution(ctx, distribution, leaves); err != nil {
		logger.Error("distribution create mirror write failed",
			"event", "distribution_create_mirror_write_failed",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"distribution_id", receipt.DistributionID,
			"error", err.Error(),
		)
		return entities.Distribution{}, err
	}
	metrics.DistributionsCreated.Inc()

	if err := uc.appendOutbox(ctx, "distribution.created", receipt.DistributionID, map[string]any{
		"distribution_id": receipt.DistributionID,
		"merkle_root":     distribution.MerkleRoot,
		"vault_type":      string(vault),
		"total_allocated": total.String(),
		"recipient_count": len(leaves),
	}); err != nil {
		return entities.Distribution{}, err
	}

	logger.Info("distribution created",
		"event", "distribution_created",
		"module", "token-distribution/distribution-service",
		"layer", "application",
		"distribution_id", receipt.DistributionID,
		"vault_type", string(vault),
		"recipient_count", len(leaves),
		"total_allocated", total.String(),
		"merkle_root", distribution.MerkleRoot,
		"tx_ref", receipt.TxRef,
	)
	return distribution, nil
}

// Finalize closes an expired distribution on the ledger and owns the
// FinalizationAttempt bookkeeping. The !finalized guard is a fast-fail only;
// the ledger itself rejects a second finalization, so no lock is needed.
func (uc UseCase) Finalize(ctx context.Context, cmd FinalizeCommand) (entities.FinalizationAttempt, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	distribution, err := uc.Repository.GetDistribution(ctx, cmd.DistributionID)
	if err != nil {
		return entities.FinalizationAttempt{}, err
	}
	if distribution.Finalized {
		return entities.FinalizationAttempt{}, domainerrors.ErrAlreadyFinalized
	}
	if distribution.StatusAt(now) != entities.DistributionStatusExpired {
		logger.Warn("distribution finalize rejected before expiry",
			"event", "distribution_finalize_not_expired",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"distribution_id", cmd.DistributionID,
			"end_time", distribution.EndTime.UTC().Format(time.RFC3339),
		)
		return entities.FinalizationAttempt{}, domainerrors.ErrNotExpired
	}

	attempt, err := uc.Repository.GetFinalizationAttempt(ctx, cmd.DistributionID)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrAttemptNotFound) {
			return entities.FinalizationAttempt{}, err
		}
		attempt = entities.FinalizationAttempt{DistributionID: cmd.DistributionID}
	}
	attempt.ExecutionType = cmd.ExecutionType

	ledgerCtx, cancel := uc.ledgerContext(ctx)
	defer cancel()

	// Finalization races are expected: a distribution finalized manually (or
	// by another process) between sweeps is recorded as skipped, not failed.
	state, err := uc.Ledger.ReadDistribution(ledgerCtx, cmd.DistributionID)
	if err == nil && state.Finalized {
		if err := uc.Repository.UpdateLedgerState(ctx, cmd.DistributionID, state.TotalClaimed, true, now); err != nil {
			return entities.FinalizationAttempt{}, err
		}
		attempt.Status = entities.AttemptStatusSkipped
		attempt.LastError = "already finalized on ledger"
		attempt.NextRetryAt = nil
		attempt.UpdatedAt = now
		if err := uc.Repository.UpsertFinalizationAttempt(ctx, attempt); err != nil {
			return entities.FinalizationAttempt{}, err
		}
		metrics.FinalizationAttempts.WithLabelValues("skipped").Inc()
		logger.Info("distribution finalize skipped, ledger already finalized",
			"event", "distribution_finalize_skipped",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"distribution_id", cmd.DistributionID,
		)
		return attempt, domainerrors.ErrAlreadyFinalized
	}

	txRef, err := uc.Ledger.SubmitFinalize(ledgerCtx, cmd.DistributionID)
	if err != nil {
		attempt = uc.recordFailure(ctx, attempt, err, now)
		metrics.FinalizationAttempts.WithLabelValues("failed").Inc()
		logger.Error("distribution finalize ledger submission failed",
			"event", "distribution_finalize_submission_failed",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"distribution_id", cmd.DistributionID,
			"execution_type", string(cmd.ExecutionType),
			"retry_count", attempt.RetryCount,
			"error", err.Error(),
		)
		return attempt, fmt.Errorf("%w: %v", domainerrors.ErrLedgerSubmission, err)
	}

	if err := uc.Repository.MarkFinalized(ctx, cmd.DistributionID, txRef, now); err != nil {
		return attempt, err
	}
	// Re-sync claimed totals so the mirror reflects the terminal state.
	if state, err := uc.Ledger.ReadDistribution(ledgerCtx, cmd.DistributionID); err == nil {
		if err := uc.Repository.UpdateLedgerState(ctx, cmd.DistributionID, state.TotalClaimed, true, now); err != nil {
			return attempt, err
		}
	}

	attempt.Status = entities.AttemptStatusSuccess
	attempt.TxRef = txRef
	attempt.LastError = ""
	attempt.NextRetryAt = nil
	attempt.UpdatedAt = now
	if err := uc.Repository.UpsertFinalizationAttempt(ctx, attempt); err != nil {
		return attempt, err
	}
	metrics.FinalizationAttempts.WithLabelValues("success").Inc()

	if err := uc.appendOutbox(ctx, "distribution.finalized", cmd.DistributionID, map[string]any{
		"distribution_id": cmd.DistributionID,
		"tx_ref":          txRef,
	}); err != nil {
		return attempt, err
	}

	logger.Info("distribution finalized",
		"event", "distribution_finalized",
		"module", "token-distribution/distribution-service",
		"layer", "application",
		"distribution_id", cmd.DistributionID,
		"execution_type", string(cmd.ExecutionType),
		"tx_ref", txRef,
	)
	return attempt, nil
}

// SyncFromLedger overwrites the mirror's claimed total and finalized flag
// with the ledger's. Idempotent, safe to call at any time; the ledger always
// wins on conflict.
func (uc UseCase) SyncFromLedger(ctx context.Context, distributionID uint64) (entities.Distribution, error) {
	logger := application.ResolveLogger(uc.Logger)

	distribution, err := uc.Repository.GetDistribution(ctx, distributionID)
	if err != nil {
		return entities.Distribution{}, err
	}

	ledgerCtx, cancel := uc.ledgerContext(ctx)
	defer cancel()

	state, err := uc.Ledger.ReadDistribution(ledgerCtx, distributionID)
	if err != nil {
		logger.Error("distribution sync ledger read failed",
			"event", "distribution_sync_ledger_read_failed",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"distribution_id", distributionID,
			"error", err.Error(),
		)
		return entities.Distribution{}, fmt.Errorf("%w: read distribution: %v", domainerrors.ErrLedgerSubmission, err)
	}

	if distribution.TotalClaimed.Cmp(state.TotalClaimed) != 0 || distribution.Finalized != state.Finalized {
		metrics.SyncDrift.Inc()
		logger.Warn("distribution mirror drifted from ledger",
			"event", "distribution_sync_drift_detected",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"distribution_id", distributionID,
			"mirror_claimed", distribution.TotalClaimed.String(),
			"ledger_claimed", state.TotalClaimed.String(),
			"mirror_finalized", distribution.Finalized,
			"ledger_finalized", state.Finalized,
		)
	}

	now := uc.now()
	// Finalized is monotonic in the mirror even if a ledger read lags.
	finalized := distribution.Finalized || state.Finalized
	if err := uc.Repository.UpdateLedgerState(ctx, distributionID, state.TotalClaimed, finalized, now); err != nil {
		return entities.Distribution{}, err
	}

	distribution.TotalClaimed = state.TotalClaimed
	distribution.Finalized = finalized
	distribution.UpdatedAt = now
	return distribution, nil
}

// ApplyClaim reflects one claim event from the ledger into the mirror. The
// claimed amount is the ledger's cumulative figure, so replays are harmless.
func (uc UseCase) ApplyClaim(ctx context.Context, cmd ApplyClaimCommand) error {
	logger := application.ResolveLogger(uc.Logger)

	raw := strings.TrimSpace(cmd.Address)
	if !common.IsHexAddress(raw) {
		return domainerrors.ErrInvalidAddress
	}
	address := strings.ToLower(common.HexToAddress(raw).Hex())

	claimed, ok := new(big.Int).SetString(strings.TrimSpace(cmd.ClaimedAmount), 10)
	if !ok || claimed.Sign() < 0 {
		return domainerrors.ErrInvalidAmount
	}

	leaf, err := uc.Repository.GetLeaf(ctx, cmd.DistributionID, address)
	if err != nil {
		return err
	}
	if claimed.Cmp(leaf.AllocatedAmount) > 0 {
		logger.Error("claim event exceeds allocation",
			"event", "distribution_claim_exceeds_allocation",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"distribution_id", cmd.DistributionID,
			"address", address,
			"claimed", claimed.String(),
			"allocated", leaf.AllocatedAmount.String(),
		)
		return domainerrors.ErrClaimExceedsAllocation
	}
	if leaf.ClaimedAmount != nil && claimed.Cmp(leaf.ClaimedAmount) < 0 {
		return domainerrors.ErrClaimRegression
	}

	if err := uc.Repository.UpsertClaimState(ctx, cmd.DistributionID, address, claimed, strings.TrimSpace(cmd.TxRef), uc.now()); err != nil {
		return err
	}
	metrics.ClaimEventsApplied.Inc()

	logger.Info("claim state applied",
		"event", "distribution_claim_applied",
		"module", "token-distribution/distribution-service",
		"layer", "application",
		"distribution_id", cmd.DistributionID,
		"address", address,
		"claimed", claimed.String(),
		"tx_ref", strings.TrimSpace(cmd.TxRef),
	)
	return nil
}

func (uc UseCase) recordFailure(ctx context.Context, attempt entities.FinalizationAttempt, cause error, now time.Time) entities.FinalizationAttempt {
	logger := application.ResolveLogger(uc.Logger)

	attempt.Status = entities.AttemptStatusFailed
	attempt.RetryCount++
	attempt.LastError = strings.TrimSpace(cause.Error())
	attempt.NextRetryAt = nil
	attempt.UpdatedAt = now

	// Manual attempts are surfaced immediately; only scheduled attempts get a
	// retry slot.
	if attempt.ExecutionType == entities.ExecutionAuto {
		schedule := uc.retrySchedule()
		if idx := attempt.RetryCount - 1; idx < len(schedule) {
			next := now.Add(schedule[idx])
			attempt.NextRetryAt = &next
		}
	}

	if err := uc.Repository.UpsertFinalizationAttempt(ctx, attempt); err != nil {
		logger.Error("finalization attempt persistence failed",
			"event", "distribution_finalize_attempt_write_failed",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"distribution_id", attempt.DistributionID,
			"error", err.Error(),
		)
	}
	return attempt
}

func (uc UseCase) appendOutbox(ctx context.Context, eventType string, distributionID uint64, data map[string]any) error {
	logger := application.ResolveLogger(uc.Logger)
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := uc.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       uc.now(),
		SourceService:    sourceService,
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "distribution_id",
		PartitionKey:     fmt.Sprintf("%d", distributionID),
		Data:             payload,
	}); err != nil {
		logger.Error("distribution outbox append failed",
			"event", "distribution_outbox_append_failed",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"event_type", eventType,
			"distribution_id", distributionID,
			"error", err.Error(),
		)
		return err
	}
	return nil
}

func (uc UseCase) retrySchedule() []time.Duration {
	if len(uc.RetrySchedule) > 0 {
		return uc.RetrySchedule
	}
	return DefaultRetrySchedule
}

func (uc UseCase) ledgerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := uc.LedgerTimeout
	if timeout <= 0 {
		timeout = defaultLedgerTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (uc UseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
