package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"merkledrop/contexts/token-distribution/distribution-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/distribution-service/domain/errors"
	"merkledrop/contexts/token-distribution/distribution-service/ports"
)

var storeStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func seedMirror(t *testing.T, store *Store, id uint64, endOffset time.Duration) {
	t.Helper()
	distribution := entities.Distribution{
		ID:             id,
		MerkleRoot:     "0x" + string(rune('a'+id)),
		VaultType:      entities.VaultGameRewards,
		TotalAllocated: big.NewInt(150),
		TotalClaimed:   new(big.Int),
		RecipientCount: 2,
		StartTime:      storeStart,
		EndTime:        storeStart.Add(endOffset),
	}
	leaves := []entities.Leaf{
		{DistributionID: id, Address: "0x1111111111111111111111111111111111111111", AllocatedAmount: big.NewInt(100), LeafIndex: 0, ClaimedAmount: new(big.Int)},
		{DistributionID: id, Address: "0x2222222222222222222222222222222222222222", AllocatedAmount: big.NewInt(50), LeafIndex: 1, ClaimedAmount: new(big.Int)},
	}
	if err := store.RecordDistribution(context.Background(), distribution, leaves); err != nil {
		t.Fatalf("seed distribution %d failed: %v", id, err)
	}
}

func TestRecordDistributionRejectsDuplicateID(t *testing.T) {
	store := NewStore()
	seedMirror(t, store, 1, 24*time.Hour)

	err := store.RecordDistribution(context.Background(), entities.Distribution{ID: 1, TotalAllocated: big.NewInt(1), TotalClaimed: new(big.Int)}, nil)
	if !errors.Is(err, domainerrors.ErrDistributionExists) {
		t.Fatalf("expected ErrDistributionExists, got %v", err)
	}
}

func TestUpsertClaimStateAdjustsRunningTotal(t *testing.T) {
	store := NewStore()
	seedMirror(t, store, 1, 24*time.Hour)
	address := "0x1111111111111111111111111111111111111111"

	if err := store.UpsertClaimState(context.Background(), 1, address, big.NewInt(30), "0xtx1", storeStart); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := store.UpsertClaimState(context.Background(), 1, address, big.NewInt(70), "0xtx2", storeStart.Add(time.Minute)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	leaf, err := store.GetLeaf(context.Background(), 1, address)
	if err != nil {
		t.Fatalf("get leaf failed: %v", err)
	}
	if leaf.ClaimedAmount.String() != "70" || leaf.ClaimCount != 2 || leaf.LastClaimTxRef != "0xtx2" {
		t.Fatalf("unexpected leaf state: %+v", leaf)
	}

	distribution, err := store.GetDistribution(context.Background(), 1)
	if err != nil {
		t.Fatalf("get distribution failed: %v", err)
	}
	// Cumulative upserts contribute only their delta to the running total.
	if distribution.TotalClaimed.String() != "70" {
		t.Fatalf("expected running total 70, got %s", distribution.TotalClaimed)
	}

	if err := store.UpsertClaimState(context.Background(), 1, "0x9999999999999999999999999999999999999999", big.NewInt(1), "", storeStart); !errors.Is(err, domainerrors.ErrLeafNotFound) {
		t.Fatalf("expected ErrLeafNotFound, got %v", err)
	}
}

func TestGetLeafIsCaseInsensitive(t *testing.T) {
	store := NewStore()
	seedMirror(t, store, 1, 24*time.Hour)

	leaf, err := store.GetLeaf(context.Background(), 1, "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("get leaf failed: %v", err)
	}
	upper, err := store.GetLeaf(context.Background(), 1, "0X1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("uppercase lookup failed: %v", err)
	}
	if upper.Address != leaf.Address {
		t.Fatalf("lookups must normalize the address")
	}
}

func TestListExpiredUnfinalizedOrdersByEndTime(t *testing.T) {
	store := NewStore()
	seedMirror(t, store, 1, 48*time.Hour)
	seedMirror(t, store, 2, 24*time.Hour)
	seedMirror(t, store, 3, 96*time.Hour)

	now := storeStart.Add(72 * time.Hour)
	expired, err := store.ListExpiredUnfinalized(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("list expired failed: %v", err)
	}
	if len(expired) != 2 || expired[0].ID != 2 || expired[1].ID != 1 {
		t.Fatalf("expected [2 1] ordered by end time, got %+v", expired)
	}

	if err := store.MarkFinalized(context.Background(), 2, "0xfin", now); err != nil {
		t.Fatalf("mark finalized failed: %v", err)
	}
	expired, err = store.ListExpiredUnfinalized(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("list expired failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != 1 {
		t.Fatalf("finalized rows must drop out, got %+v", expired)
	}

	limited, err := store.ListExpiredUnfinalized(context.Background(), storeStart.Add(100*time.Hour), 1)
	if err != nil {
		t.Fatalf("list expired failed: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit must cap the sweep batch, got %d", len(limited))
	}
}

func TestUpdateLedgerStateKeepsFinalizedMonotonic(t *testing.T) {
	store := NewStore()
	seedMirror(t, store, 1, 24*time.Hour)

	if err := store.UpdateLedgerState(context.Background(), 1, big.NewInt(10), true, storeStart); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	// A lagging ledger read must not clear the flag.
	if err := store.UpdateLedgerState(context.Background(), 1, big.NewInt(10), false, storeStart.Add(time.Minute)); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	distribution, _ := store.GetDistribution(context.Background(), 1)
	if !distribution.Finalized {
		t.Fatalf("finalized flag must be monotonic")
	}
}

func TestOutboxLifecycle(t *testing.T) {
	store := NewStore()
	store.SetNow(storeStart)

	for i, eventType := range []string{"distribution.created", "distribution.finalized"} {
		err := store.AppendOutbox(context.Background(), ports.EventEnvelope{
			EventID:    string(rune('a' + i)),
			EventType:  eventType,
			OccurredAt: storeStart.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 2 || pending[0].EventType != "distribution.created" {
		t.Fatalf("expected oldest-first pending events, got %+v", pending)
	}

	if err := store.MarkOutboxSent(context.Background(), pending[0].OutboxID, storeStart.Add(time.Minute)); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	pending, err = store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != "distribution.finalized" {
		t.Fatalf("sent events must drop out, got %+v", pending)
	}
}
