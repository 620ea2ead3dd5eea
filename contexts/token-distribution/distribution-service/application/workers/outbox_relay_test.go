package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"merkledrop/contexts/token-distribution/distribution-service/application/commands"
	"merkledrop/contexts/token-distribution/distribution-service/domain/entities"
	"merkledrop/contexts/token-distribution/distribution-service/ports"
)

type recordingPublisher struct {
	topics []string
	events []ports.EventEnvelope
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func TestOutboxRelayDrainsPending(t *testing.T) {
	store, _, uc, _ := newSweepFixture(t)
	seedDistribution(t, uc, 1)

	store.SetNow(sweepStart.Add(25 * time.Hour))
	if _, err := uc.Finalize(context.Background(), commands.FinalizeCommand{
		DistributionID: 1,
		ExecutionType:  entities.ExecutionManual,
	}); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	publisher := &recordingPublisher{}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected created+finalized events, got %d", len(publisher.events))
	}
	if publisher.events[0].EventType != "distribution.created" || publisher.events[1].EventType != "distribution.finalized" {
		t.Fatalf("events out of order: %s, %s", publisher.events[0].EventType, publisher.events[1].EventType)
	}
	for _, topic := range publisher.topics {
		if topic != "distribution.lifecycle" {
			t.Fatalf("unexpected topic %q", topic)
		}
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("relay must drain the outbox, %d left", len(pending))
	}

	// Nothing left: a second cycle publishes nothing.
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("idle relay failed: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("drained outbox must not republish")
	}
}

func TestOutboxRelayKeepsUnpublishedOnError(t *testing.T) {
	store, _, uc, _ := newSweepFixture(t)
	seedDistribution(t, uc, 1)

	publisher := &recordingPublisher{err: errors.New("broker unavailable")}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}

	if err := relay.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected publish error to surface")
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("failed publish must stay pending, got %d", len(pending))
	}
}
