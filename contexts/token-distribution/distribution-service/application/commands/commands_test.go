package commands

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"merkledrop/contexts/token-distribution/distribution-service/adapters/memory"
	"merkledrop/contexts/token-distribution/distribution-service/domain/allocation"
	"merkledrop/contexts/token-distribution/distribution-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/distribution-service/domain/errors"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestUseCase(t *testing.T) (UseCase, *memory.Store, *memory.Ledger) {
	t.Helper()
	store := memory.NewStore()
	store.SetNow(testStart)
	ledger := memory.NewLedger(store)
	uc := UseCase{
		Repository: store,
		Ledger:     ledger,
		Clock:      store,
		IDGen:      store,
		Outbox:     store,
	}
	return uc, store, ledger
}

func sampleAllocations() []allocation.Input {
	return []allocation.Input{
		{Address: "0x1111111111111111111111111111111111111111", Amount: "100"},
		{Address: "0x2222222222222222222222222222222222222222", Amount: "50"},
		{Address: "0x3333333333333333333333333333333333333333", Amount: "25"},
	}
}

func createSample(t *testing.T, uc UseCase, durationDays int) entities.Distribution {
	t.Helper()
	distribution, err := uc.CreateDistribution(context.Background(), CreateDistributionCommand{
		Allocations:  sampleAllocations(),
		VaultType:    "game_rewards",
		DurationDays: durationDays,
	})
	if err != nil {
		t.Fatalf("create distribution failed: %v", err)
	}
	return distribution
}

func TestCreateDistributionBuildsMirror(t *testing.T) {
	uc, store, _ := newTestUseCase(t)

	distribution := createSample(t, uc, 7)
	if distribution.ID != 1 {
		t.Fatalf("expected ledger-assigned id 1, got %d", distribution.ID)
	}
	if distribution.TotalAllocated.String() != "175" {
		t.Fatalf("expected total 175, got %s", distribution.TotalAllocated.String())
	}
	if distribution.RecipientCount != 3 {
		t.Fatalf("expected 3 recipients, got %d", distribution.RecipientCount)
	}
	if want := testStart.Add(7 * 24 * time.Hour); !distribution.EndTime.Equal(want) {
		t.Fatalf("expected end time %s, got %s", want, distribution.EndTime)
	}
	if distribution.MerkleRoot == "" || distribution.SubmitTxRef == "" {
		t.Fatalf("expected recorded root and tx ref, got %q / %q", distribution.MerkleRoot, distribution.SubmitTxRef)
	}

	leaves, err := store.ListLeaves(context.Background(), distribution.ID)
	if err != nil {
		t.Fatalf("list leaves failed: %v", err)
	}
	if len(leaves) != 3 {
		t.Fatalf("expected 3 leaves, got %d", len(leaves))
	}
	for i, leaf := range leaves {
		if leaf.LeafIndex != i {
			t.Fatalf("leaf %d has index %d", i, leaf.LeafIndex)
		}
		if leaf.ClaimedAmount.Sign() != 0 {
			t.Fatalf("fresh leaf must start unclaimed")
		}
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != "distribution.created" {
		t.Fatalf("expected one distribution.created outbox event, got %+v", pending)
	}
}

func TestCreateDistributionRejectsBadInput(t *testing.T) {
	uc, _, ledger := newTestUseCase(t)

	_, err := uc.CreateDistribution(context.Background(), CreateDistributionCommand{
		Allocations:  sampleAllocations(),
		VaultType:    "treasury",
		DurationDays: 7,
	})
	if !errors.Is(err, domainerrors.ErrInvalidVaultType) {
		t.Fatalf("expected ErrInvalidVaultType, got %v", err)
	}

	_, err = uc.CreateDistribution(context.Background(), CreateDistributionCommand{
		Allocations:  sampleAllocations(),
		VaultType:    "game_rewards",
		DurationDays: 0,
	})
	if !errors.Is(err, domainerrors.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}

	var validationErr *allocation.ValidationError
	_, err = uc.CreateDistribution(context.Background(), CreateDistributionCommand{
		Allocations: []allocation.Input{
			{Address: "bogus", Amount: "10"},
		},
		VaultType:    "game_rewards",
		DurationDays: 7,
	})
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	if ledger.SubmitCalls != 0 {
		t.Fatalf("invalid input must never reach the ledger, saw %d submissions", ledger.SubmitCalls)
	}
}

func TestCreateDistributionInsufficientVault(t *testing.T) {
	uc, _, ledger := newTestUseCase(t)
	ledger.SetVaultBalance(entities.VaultGameRewards, big.NewInt(100))

	_, err := uc.CreateDistribution(context.Background(), CreateDistributionCommand{
		Allocations:  sampleAllocations(),
		VaultType:    "game_rewards",
		DurationDays: 7,
	})
	if !errors.Is(err, domainerrors.ErrInsufficientVaultBalance) {
		t.Fatalf("expected ErrInsufficientVaultBalance, got %v", err)
	}
	if ledger.SubmitCalls != 0 {
		t.Fatalf("underfunded creation must not submit, saw %d submissions", ledger.SubmitCalls)
	}
}

func TestCreateDistributionLedgerFailureLeavesMirrorEmpty(t *testing.T) {
	uc, store, ledger := newTestUseCase(t)
	ledger.SubmitDistributionErr = errors.New("rpc unavailable")

	_, err := uc.CreateDistribution(context.Background(), CreateDistributionCommand{
		Allocations:  sampleAllocations(),
		VaultType:    "game_rewards",
		DurationDays: 7,
	})
	if !errors.Is(err, domainerrors.ErrLedgerSubmission) {
		t.Fatalf("expected ErrLedgerSubmission, got %v", err)
	}
	if _, err := store.GetDistribution(context.Background(), 1); !errors.Is(err, domainerrors.ErrDistributionNotFound) {
		t.Fatalf("mirror must stay empty after submission failure, got %v", err)
	}
}

func TestFinalizeRejectsActiveDistribution(t *testing.T) {
	uc, _, ledger := newTestUseCase(t)
	distribution := createSample(t, uc, 7)

	_, err := uc.Finalize(context.Background(), FinalizeCommand{
		DistributionID: distribution.ID,
		ExecutionType:  entities.ExecutionManual,
	})
	if !errors.Is(err, domainerrors.ErrNotExpired) {
		t.Fatalf("expected ErrNotExpired, got %v", err)
	}
	if ledger.FinalizeCalls != 0 {
		t.Fatalf("active distribution must not reach the ledger")
	}
}

func TestFinalizeExpiredDistribution(t *testing.T) {
	uc, store, _ := newTestUseCase(t)
	distribution := createSample(t, uc, 1)

	store.SetNow(testStart.Add(25 * time.Hour))

	attempt, err := uc.Finalize(context.Background(), FinalizeCommand{
		DistributionID: distribution.ID,
		ExecutionType:  entities.ExecutionManual,
	})
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if attempt.Status != entities.AttemptStatusSuccess {
		t.Fatalf("expected success attempt, got %s", attempt.Status)
	}
	if attempt.TxRef == "" {
		t.Fatalf("expected finalize tx ref")
	}

	updated, err := store.GetDistribution(context.Background(), distribution.ID)
	if err != nil {
		t.Fatalf("get distribution failed: %v", err)
	}
	if !updated.Finalized {
		t.Fatalf("mirror must be finalized")
	}

	// Finalized is terminal.
	_, err = uc.Finalize(context.Background(), FinalizeCommand{
		DistributionID: distribution.ID,
		ExecutionType:  entities.ExecutionManual,
	})
	if !errors.Is(err, domainerrors.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized on repeat, got %v", err)
	}
}

func TestFinalizeObservesOutOfBandFinalization(t *testing.T) {
	uc, store, ledger := newTestUseCase(t)
	distribution := createSample(t, uc, 1)

	store.SetNow(testStart.Add(25 * time.Hour))
	ledger.ForceFinalize(distribution.ID)

	attempt, err := uc.Finalize(context.Background(), FinalizeCommand{
		DistributionID: distribution.ID,
		ExecutionType:  entities.ExecutionAuto,
	})
	if !errors.Is(err, domainerrors.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
	if attempt.Status != entities.AttemptStatusSkipped {
		t.Fatalf("race must be recorded as skipped, got %s", attempt.Status)
	}

	updated, err := store.GetDistribution(context.Background(), distribution.ID)
	if err != nil {
		t.Fatalf("get distribution failed: %v", err)
	}
	if !updated.Finalized {
		t.Fatalf("mirror must converge to the ledger's finalized state")
	}
}

func TestFinalizeFailureSchedulesRetryForAutoOnly(t *testing.T) {
	uc, store, ledger := newTestUseCase(t)
	distribution := createSample(t, uc, 1)

	now := testStart.Add(25 * time.Hour)
	store.SetNow(now)
	ledger.FinalizeFailures = 2

	attempt, err := uc.Finalize(context.Background(), FinalizeCommand{
		DistributionID: distribution.ID,
		ExecutionType:  entities.ExecutionAuto,
	})
	if !errors.Is(err, domainerrors.ErrLedgerSubmission) {
		t.Fatalf("expected ErrLedgerSubmission, got %v", err)
	}
	if attempt.Status != entities.AttemptStatusFailed || attempt.RetryCount != 1 {
		t.Fatalf("expected first failed attempt, got %+v", attempt)
	}
	if attempt.NextRetryAt == nil || !attempt.NextRetryAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("first retry must be scheduled one hour out, got %v", attempt.NextRetryAt)
	}

	attempt, err = uc.Finalize(context.Background(), FinalizeCommand{
		DistributionID: distribution.ID,
		ExecutionType:  entities.ExecutionManual,
	})
	if !errors.Is(err, domainerrors.ErrLedgerSubmission) {
		t.Fatalf("expected ErrLedgerSubmission, got %v", err)
	}
	if attempt.RetryCount != 2 {
		t.Fatalf("retry count must accumulate, got %d", attempt.RetryCount)
	}
	if attempt.NextRetryAt != nil {
		t.Fatalf("manual failures must not schedule retries, got %v", attempt.NextRetryAt)
	}
}

func TestApplyClaimUpdatesLeafAndRunningTotal(t *testing.T) {
	uc, store, _ := newTestUseCase(t)
	distribution := createSample(t, uc, 7)

	address := "0x2222222222222222222222222222222222222222"
	err := uc.ApplyClaim(context.Background(), ApplyClaimCommand{
		DistributionID: distribution.ID,
		Address:        address,
		ClaimedAmount:  "20",
		TxRef:          "0xclaim1",
	})
	if err != nil {
		t.Fatalf("apply claim failed: %v", err)
	}

	leaf, err := store.GetLeaf(context.Background(), distribution.ID, address)
	if err != nil {
		t.Fatalf("get leaf failed: %v", err)
	}
	if leaf.ClaimedAmount.String() != "20" || leaf.ClaimCount != 1 {
		t.Fatalf("unexpected leaf claim state: %+v", leaf)
	}
	if leaf.Claimable().String() != "30" {
		t.Fatalf("expected claimable 30, got %s", leaf.Claimable().String())
	}

	updated, err := store.GetDistribution(context.Background(), distribution.ID)
	if err != nil {
		t.Fatalf("get distribution failed: %v", err)
	}
	if updated.TotalClaimed.String() != "20" {
		t.Fatalf("expected running total 20, got %s", updated.TotalClaimed.String())
	}

	// Cumulative amounts make redelivery harmless.
	if err := uc.ApplyClaim(context.Background(), ApplyClaimCommand{
		DistributionID: distribution.ID,
		Address:        address,
		ClaimedAmount:  "20",
		TxRef:          "0xclaim1",
	}); err != nil {
		t.Fatalf("replayed claim failed: %v", err)
	}
	updated, _ = store.GetDistribution(context.Background(), distribution.ID)
	if updated.TotalClaimed.String() != "20" {
		t.Fatalf("replay must not change the running total, got %s", updated.TotalClaimed.String())
	}
}

func TestApplyClaimGuards(t *testing.T) {
	uc, _, _ := newTestUseCase(t)
	distribution := createSample(t, uc, 7)
	address := "0x2222222222222222222222222222222222222222"

	err := uc.ApplyClaim(context.Background(), ApplyClaimCommand{
		DistributionID: distribution.ID,
		Address:        address,
		ClaimedAmount:  "51",
	})
	if !errors.Is(err, domainerrors.ErrClaimExceedsAllocation) {
		t.Fatalf("expected ErrClaimExceedsAllocation, got %v", err)
	}

	if err := uc.ApplyClaim(context.Background(), ApplyClaimCommand{
		DistributionID: distribution.ID,
		Address:        address,
		ClaimedAmount:  "40",
	}); err != nil {
		t.Fatalf("apply claim failed: %v", err)
	}
	err = uc.ApplyClaim(context.Background(), ApplyClaimCommand{
		DistributionID: distribution.ID,
		Address:        address,
		ClaimedAmount:  "30",
	})
	if !errors.Is(err, domainerrors.ErrClaimRegression) {
		t.Fatalf("expected ErrClaimRegression, got %v", err)
	}

	err = uc.ApplyClaim(context.Background(), ApplyClaimCommand{
		DistributionID: distribution.ID,
		Address:        "0x9999999999999999999999999999999999999999",
		ClaimedAmount:  "1",
	})
	if !errors.Is(err, domainerrors.ErrLeafNotFound) {
		t.Fatalf("expected ErrLeafNotFound, got %v", err)
	}
}

func TestSyncFromLedgerConverges(t *testing.T) {
	uc, store, ledger := newTestUseCase(t)
	distribution := createSample(t, uc, 7)

	ledger.SetClaimed(distribution.ID, big.NewInt(60))

	synced, err := uc.SyncFromLedger(context.Background(), distribution.ID)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if synced.TotalClaimed.String() != "60" {
		t.Fatalf("expected synced total 60, got %s", synced.TotalClaimed.String())
	}

	stored, err := store.GetDistribution(context.Background(), distribution.ID)
	if err != nil {
		t.Fatalf("get distribution failed: %v", err)
	}
	if stored.TotalClaimed.String() != "60" {
		t.Fatalf("mirror must hold the ledger total, got %s", stored.TotalClaimed.String())
	}
}
