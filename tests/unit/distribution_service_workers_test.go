package unit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	distributionservice "merkledrop/contexts/token-distribution/distribution-service"
	"merkledrop/contexts/token-distribution/distribution-service/application/workers"
	contractsv1 "merkledrop/contracts/gen/events/v1"
	"merkledrop/internal/platform/messaging"
)

func TestFinalizerSweepAndRelayFlow(t *testing.T) {
	module := distributionservice.NewInMemoryModule(nil)
	module.Store.SetNow(distributionStart)
	created := createTestDistribution(t, module)

	job := workers.FinalizerJob{
		Commands:   module.Commands,
		Repository: module.Store,
		Clock:      module.Store,
		BatchSize:  10,
		MaxRetries: 3,
	}

	module.Store.SetNow(distributionStart.Add(8 * 24 * time.Hour))
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	fetched, err := module.Handler.GetDistributionHandler(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get distribution failed: %v", err)
	}
	if !fetched.Distribution.Finalized {
		t.Fatalf("sweep must finalize the expired distribution")
	}

	bus, err := messaging.NewKafka(nil, nil)
	if err != nil {
		t.Fatalf("bus init failed: %v", err)
	}
	relay := workers.OutboxRelay{Outbox: module.Store, Publisher: bus, Clock: module.Store}
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	pending, err := module.Store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("relay must drain created+finalized events, %d left", len(pending))
	}
}

func TestClaimedConsumerEndToEnd(t *testing.T) {
	module := distributionservice.NewInMemoryModule(nil)
	module.Store.SetNow(distributionStart)
	created := createTestDistribution(t, module)

	bus, err := messaging.NewKafka(nil, nil)
	if err != nil {
		t.Fatalf("bus init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := workers.ClaimedConsumer{
		Subscriber:    bus,
		Commands:      module.Commands,
		ConsumerGroup: "distribution-claimed-cg",
	}
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("consumer start failed: %v", err)
	}

	address := "0xAAA0000000000000000000000000000000000001"
	payload, err := json.Marshal(map[string]any{
		"distribution_id": created.ID,
		"account":         address,
		"claimed_amount":  "60",
		"tx_ref":          "0xclaimtx",
	})
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}
	err = bus.Publish(ctx, "ledger.claim.recorded", contractsv1.Envelope{
		EventID:    "evt-claim-1",
		EventType:  "ledger.claim.recorded",
		OccurredAt: distributionStart,
		Data:       payload,
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		claimable, err := module.Handler.GetClaimableHandler(context.Background(), created.ID, address)
		if err != nil {
			t.Fatalf("get claimable failed: %v", err)
		}
		if claimable.Claimable == "40" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("claim event was not applied, claimable still %s", claimable.Claimable)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
