package memory

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"merkledrop/contexts/token-distribution/distribution-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/distribution-service/domain/errors"
	"merkledrop/contexts/token-distribution/distribution-service/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	OutboxID    string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// Store is the in-memory mirror used by tests and local runs. It implements
// Repository, Clock, IDGenerator and the outbox ports.
type Store struct {
	mu sync.RWMutex

	distributions map[uint64]entities.Distribution
	leaves        map[uint64]map[string]entities.Leaf
	attempts      map[uint64]entities.FinalizationAttempt
	outbox        map[string]outboxRecord

	now time.Time
}

func NewStore() *Store {
	return &Store{
		distributions: make(map[uint64]entities.Distribution),
		leaves:        make(map[uint64]map[string]entities.Leaf),
		attempts:      make(map[uint64]entities.FinalizationAttempt),
		outbox:        make(map[string]outboxRecord),
	}
}

// SetNow pins the clock for deterministic scheduling tests. The zero value
// falls back to wall time.
func (s *Store) SetNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now.UTC()
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.now.IsZero() {
		return time.Now().UTC()
	}
	return s.now
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) RecordDistribution(_ context.Context, distribution entities.Distribution, leaves []entities.Leaf) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.distributions[distribution.ID]; exists {
		return domainerrors.ErrDistributionExists
	}
	byAddress := make(map[string]entities.Leaf, len(leaves))
	for _, leaf := range leaves {
		address := strings.ToLower(strings.TrimSpace(leaf.Address))
		if _, dup := byAddress[address]; dup {
			return domainerrors.ErrDistributionExists
		}
		byAddress[address] = cloneLeaf(leaf)
	}
	s.distributions[distribution.ID] = cloneDistribution(distribution)
	s.leaves[distribution.ID] = byAddress
	return nil
}

func (s *Store) GetDistribution(_ context.Context, distributionID uint64) (entities.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	distribution, exists := s.distributions[distributionID]
	if !exists {
		return entities.Distribution{}, domainerrors.ErrDistributionNotFound
	}
	return cloneDistribution(distribution), nil
}

func (s *Store) ListDistributions(_ context.Context, filter ports.ListFilter) ([]entities.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	distributions := make([]entities.Distribution, 0, len(s.distributions))
	for _, distribution := range s.distributions {
		if filter.VaultType != "" && distribution.VaultType != filter.VaultType {
			continue
		}
		distributions = append(distributions, cloneDistribution(distribution))
	}
	sort.Slice(distributions, func(i, j int) bool {
		if distributions[i].StartTime.Equal(distributions[j].StartTime) {
			return distributions[i].ID > distributions[j].ID
		}
		return distributions[i].StartTime.After(distributions[j].StartTime)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(distributions) {
			return nil, nil
		}
		distributions = distributions[filter.Offset:]
	}
	if filter.Limit > 0 && len(distributions) > filter.Limit {
		distributions = distributions[:filter.Limit]
	}
	return distributions, nil
}

func (s *Store) GetStats(_ context.Context, now time.Time) (entities.DistributionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := entities.DistributionStats{
		TotalAllocated: new(big.Int),
		TotalClaimed:   new(big.Int),
	}
	for _, distribution := range s.distributions {
		stats.Total++
		switch distribution.StatusAt(now) {
		case entities.DistributionStatusPending:
			stats.Pending++
		case entities.DistributionStatusActive:
			stats.Active++
		case entities.DistributionStatusExpired:
			stats.Expired++
		case entities.DistributionStatusFinalized:
			stats.Finalized++
		}
		stats.TotalAllocated.Add(stats.TotalAllocated, distribution.TotalAllocated)
		stats.TotalClaimed.Add(stats.TotalClaimed, distribution.TotalClaimed)
	}
	return stats, nil
}

func (s *Store) ListExpiredUnfinalized(_ context.Context, now time.Time, limit int) ([]entities.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	expired := make([]entities.Distribution, 0, limit)
	for _, distribution := range s.distributions {
		if distribution.Finalized || now.Before(distribution.EndTime) {
			continue
		}
		expired = append(expired, cloneDistribution(distribution))
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].EndTime.Before(expired[j].EndTime)
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (s *Store) GetLeaf(_ context.Context, distributionID uint64, address string) (entities.Leaf, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	leaf, exists := s.leaves[distributionID][strings.ToLower(strings.TrimSpace(address))]
	if !exists {
		return entities.Leaf{}, domainerrors.ErrLeafNotFound
	}
	return cloneLeaf(leaf), nil
}

func (s *Store) ListLeaves(_ context.Context, distributionID uint64) ([]entities.Leaf, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byAddress, exists := s.leaves[distributionID]
	if !exists {
		return nil, domainerrors.ErrDistributionNotFound
	}
	leaves := make([]entities.Leaf, 0, len(byAddress))
	for _, leaf := range byAddress {
		leaves = append(leaves, cloneLeaf(leaf))
	}
	sort.Slice(leaves, func(i, j int) bool {
		return leaves[i].LeafIndex < leaves[j].LeafIndex
	})
	return leaves, nil
}

func (s *Store) UpsertClaimState(_ context.Context, distributionID uint64, address string, claimed *big.Int, txRef string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := strings.ToLower(strings.TrimSpace(address))
	leaf, exists := s.leaves[distributionID][normalized]
	if !exists {
		return domainerrors.ErrLeafNotFound
	}
	distribution, exists := s.distributions[distributionID]
	if !exists {
		return domainerrors.ErrDistributionNotFound
	}

	previous := new(big.Int)
	if leaf.ClaimedAmount != nil {
		previous.Set(leaf.ClaimedAmount)
	}
	delta := new(big.Int).Sub(claimed, previous)

	claimTime := at.UTC()
	leaf.ClaimedAmount = new(big.Int).Set(claimed)
	leaf.ClaimCount++
	leaf.LastClaimTxRef = txRef
	leaf.LastClaimTime = &claimTime
	s.leaves[distributionID][normalized] = leaf

	distribution.TotalClaimed = new(big.Int).Add(distribution.TotalClaimed, delta)
	distribution.UpdatedAt = claimTime
	s.distributions[distributionID] = distribution
	return nil
}

func (s *Store) UpdateLedgerState(_ context.Context, distributionID uint64, totalClaimed *big.Int, finalized bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	distribution, exists := s.distributions[distributionID]
	if !exists {
		return domainerrors.ErrDistributionNotFound
	}
	distribution.TotalClaimed = new(big.Int).Set(totalClaimed)
	distribution.Finalized = distribution.Finalized || finalized
	distribution.UpdatedAt = at.UTC()
	s.distributions[distributionID] = distribution
	return nil
}

func (s *Store) MarkFinalized(_ context.Context, distributionID uint64, txRef string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	distribution, exists := s.distributions[distributionID]
	if !exists {
		return domainerrors.ErrDistributionNotFound
	}
	distribution.Finalized = true
	distribution.FinalizeTxRef = txRef
	distribution.UpdatedAt = at.UTC()
	s.distributions[distributionID] = distribution
	return nil
}

func (s *Store) GetFinalizationAttempt(_ context.Context, distributionID uint64) (entities.FinalizationAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempt, exists := s.attempts[distributionID]
	if !exists {
		return entities.FinalizationAttempt{}, domainerrors.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *Store) UpsertFinalizationAttempt(_ context.Context, attempt entities.FinalizationAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.DistributionID] = attempt
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, event ports.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox[event.EventID] = outboxRecord{
		OutboxID:  event.EventID,
		EventType: event.EventType,
		Payload:   payload,
		CreatedAt: event.OccurredAt.UTC(),
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	pending := make([]ports.OutboxMessage, 0, limit)
	for _, record := range s.outbox {
		if record.PublishedAt != nil {
			continue
		}
		pending = append(pending, ports.OutboxMessage{
			OutboxID:  record.OutboxID,
			EventType: record.EventType,
			Payload:   append([]byte(nil), record.Payload...),
			CreatedAt: record.CreatedAt,
		})
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.outbox[outboxID]
	if !exists {
		return domainerrors.ErrDistributionNotFound
	}
	sent := at.UTC()
	record.PublishedAt = &sent
	s.outbox[outboxID] = record
	return nil
}

func cloneDistribution(distribution entities.Distribution) entities.Distribution {
	clone := distribution
	if distribution.TotalAllocated != nil {
		clone.TotalAllocated = new(big.Int).Set(distribution.TotalAllocated)
	}
	if distribution.TotalClaimed != nil {
		clone.TotalClaimed = new(big.Int).Set(distribution.TotalClaimed)
	}
	return clone
}

func cloneLeaf(leaf entities.Leaf) entities.Leaf {
	clone := leaf
	if leaf.AllocatedAmount != nil {
		clone.AllocatedAmount = new(big.Int).Set(leaf.AllocatedAmount)
	}
	if leaf.ClaimedAmount != nil {
		clone.ClaimedAmount = new(big.Int).Set(leaf.ClaimedAmount)
	}
	if leaf.LastClaimTime != nil {
		claimTime := *leaf.LastClaimTime
		clone.LastClaimTime = &claimTime
	}
	return clone
}
