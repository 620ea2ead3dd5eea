package workers

import (
	"context"
	"testing"
	"time"

	"merkledrop/contexts/token-distribution/distribution-service/adapters/memory"
	"merkledrop/contexts/token-distribution/distribution-service/application/commands"
	"merkledrop/contexts/token-distribution/distribution-service/domain/allocation"
	"merkledrop/contexts/token-distribution/distribution-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/distribution-service/domain/errors"
)

var sweepStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newSweepFixture(t *testing.T) (*memory.Store, *memory.Ledger, commands.UseCase, FinalizerJob) {
	t.Helper()
	store := memory.NewStore()
	store.SetNow(sweepStart)
	ledger := memory.NewLedger(store)
	uc := commands.UseCase{
		Repository: store,
		Ledger:     ledger,
		Clock:      store,
		IDGen:      store,
		Outbox:     store,
	}
	job := FinalizerJob{
		Commands:   uc,
		Repository: store,
		Clock:      store,
		BatchSize:  10,
		MaxRetries: 3,
	}
	return store, ledger, uc, job
}

func seedDistribution(t *testing.T, uc commands.UseCase, durationDays int) entities.Distribution {
	t.Helper()
	distribution, err := uc.CreateDistribution(context.Background(), commands.CreateDistributionCommand{
		Allocations: []allocation.Input{
			{Address: "0x1111111111111111111111111111111111111111", Amount: "100"},
		},
		VaultType:    "game_rewards",
		DurationDays: durationDays,
	})
	if err != nil {
		t.Fatalf("create distribution failed: %v", err)
	}
	return distribution
}

func TestSweepFinalizesExpired(t *testing.T) {
	store, _, uc, job := newSweepFixture(t)
	distribution := seedDistribution(t, uc, 1)

	// Still active: nothing to do.
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if _, err := store.GetFinalizationAttempt(context.Background(), distribution.ID); err != domainerrors.ErrAttemptNotFound {
		t.Fatalf("active distribution must not be attempted, got %v", err)
	}

	store.SetNow(sweepStart.Add(25 * time.Hour))
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	attempt, err := store.GetFinalizationAttempt(context.Background(), distribution.ID)
	if err != nil {
		t.Fatalf("get attempt failed: %v", err)
	}
	if attempt.Status != entities.AttemptStatusSuccess || attempt.ExecutionType != entities.ExecutionAuto {
		t.Fatalf("unexpected attempt: %+v", attempt)
	}
	updated, _ := store.GetDistribution(context.Background(), distribution.ID)
	if !updated.Finalized {
		t.Fatalf("sweep must finalize the mirror")
	}
}

func TestSweepBacksOffPerSchedule(t *testing.T) {
	store, ledger, uc, job := newSweepFixture(t)
	distribution := seedDistribution(t, uc, 1)
	ledger.FinalizeFailures = 10

	expiry := sweepStart.Add(25 * time.Hour)
	wantDelays := []time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour}

	now := expiry
	for i, delay := range wantDelays {
		store.SetNow(now)
		if err := job.RunOnce(context.Background()); err != nil {
			t.Fatalf("sweep %d failed: %v", i+1, err)
		}
		attempt, err := store.GetFinalizationAttempt(context.Background(), distribution.ID)
		if err != nil {
			t.Fatalf("get attempt failed: %v", err)
		}
		if attempt.Status != entities.AttemptStatusFailed || attempt.RetryCount != i+1 {
			t.Fatalf("sweep %d: unexpected attempt %+v", i+1, attempt)
		}
		if attempt.NextRetryAt == nil || !attempt.NextRetryAt.Equal(now.Add(delay)) {
			t.Fatalf("sweep %d: expected retry at +%s, got %v", i+1, delay, attempt.NextRetryAt)
		}

		// A sweep before the retry slot must not touch the ledger.
		calls := ledger.FinalizeCalls
		store.SetNow(now.Add(delay / 2))
		if err := job.RunOnce(context.Background()); err != nil {
			t.Fatalf("early sweep failed: %v", err)
		}
		if ledger.FinalizeCalls != calls {
			t.Fatalf("sweep %d: early retry hit the ledger", i+1)
		}

		now = now.Add(delay)
	}

	// Fourth due sweep: retries are exhausted, marked skipped without another
	// ledger call.
	calls := ledger.FinalizeCalls
	store.SetNow(now)
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("exhaustion sweep failed: %v", err)
	}
	attempt, _ := store.GetFinalizationAttempt(context.Background(), distribution.ID)
	if attempt.Status != entities.AttemptStatusSkipped {
		t.Fatalf("expected skipped after exhausted retries, got %s", attempt.Status)
	}
	if attempt.LastError == "" {
		t.Fatalf("last error must survive for inspection")
	}
	if ledger.FinalizeCalls != calls {
		t.Fatalf("exhausted distribution must not reach the ledger again")
	}

	// Terminal attempts stay terminal on later sweeps.
	store.SetNow(now.Add(24 * time.Hour))
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("post-terminal sweep failed: %v", err)
	}
	if ledger.FinalizeCalls != calls {
		t.Fatalf("terminal attempt must be left alone")
	}
}

func TestSweepToleratesManualRace(t *testing.T) {
	store, ledger, uc, job := newSweepFixture(t)
	distribution := seedDistribution(t, uc, 1)

	store.SetNow(sweepStart.Add(25 * time.Hour))
	ledger.ForceFinalize(distribution.ID)

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	attempt, err := store.GetFinalizationAttempt(context.Background(), distribution.ID)
	if err != nil {
		t.Fatalf("get attempt failed: %v", err)
	}
	if attempt.Status != entities.AttemptStatusSkipped {
		t.Fatalf("race must be recorded as skipped, got %s", attempt.Status)
	}
	updated, _ := store.GetDistribution(context.Background(), distribution.ID)
	if !updated.Finalized {
		t.Fatalf("mirror must converge to the finalized ledger state")
	}
}
