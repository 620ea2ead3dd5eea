package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"merkledrop/contexts/token-distribution/distribution-service/domain/entities"
	"merkledrop/contexts/token-distribution/distribution-service/ports"
)

type ledgerRecord struct {
	root           [32]byte
	totalAllocated *big.Int
	totalClaimed   *big.Int
	startTime      time.Time
	endTime        time.Time
	finalized      bool
}

// Ledger is an in-process distributor contract stand-in. It mimics the
// contract's observable behavior: ids are assigned on submission, vaults are
// debited, and a second finalization reverts.
type Ledger struct {
	mu sync.Mutex

	clock   ports.Clock
	nextID  uint64
	vaults  map[entities.VaultType]*big.Int
	records map[uint64]*ledgerRecord

	// Failure injection for scheduler and retry tests.
	SubmitDistributionErr error
	FinalizeFailures      int

	SubmitCalls   int
	FinalizeCalls int
}

func NewLedger(clock ports.Clock) *Ledger {
	defaultBalance, _ := new(big.Int).SetString("1000000000000000000000000000", 10)
	return &Ledger{
		clock: clock,
		vaults: map[entities.VaultType]*big.Int{
			entities.VaultGameRewards:   new(big.Int).Set(defaultBalance),
			entities.VaultSocialRewards: new(big.Int).Set(defaultBalance),
			entities.VaultEcosystemFund: new(big.Int).Set(defaultBalance),
		},
		records: make(map[uint64]*ledgerRecord),
	}
}

func (l *Ledger) SetVaultBalance(vault entities.VaultType, balance *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vaults[vault] = new(big.Int).Set(balance)
}

// SetClaimed overwrites a distribution's cumulative claimed total, standing
// in for claims observed on chain.
func (l *Ledger) SetClaimed(distributionID uint64, claimed *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if record, exists := l.records[distributionID]; exists {
		record.totalClaimed = new(big.Int).Set(claimed)
	}
}

// ForceFinalize finalizes directly on the ledger, bypassing the service, to
// simulate an out-of-band manual finalization.
func (l *Ledger) ForceFinalize(distributionID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if record, exists := l.records[distributionID]; exists {
		record.finalized = true
	}
}

func (l *Ledger) SubmitDistribution(_ context.Context, merkleRoot [32]byte, total *big.Int, vault entities.VaultType, durationDays int) (ports.SubmitReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.SubmitCalls++
	if l.SubmitDistributionErr != nil {
		return ports.SubmitReceipt{}, l.SubmitDistributionErr
	}
	balance, exists := l.vaults[vault]
	if !exists {
		return ports.SubmitReceipt{}, fmt.Errorf("unknown vault %q", vault)
	}
	if balance.Cmp(total) < 0 {
		return ports.SubmitReceipt{}, errors.New("execution reverted: vault balance too low")
	}
	balance.Sub(balance, total)

	l.nextID++
	start := l.now()
	end := start.Add(time.Duration(durationDays) * 24 * time.Hour)
	l.records[l.nextID] = &ledgerRecord{
		root:           merkleRoot,
		totalAllocated: new(big.Int).Set(total),
		totalClaimed:   new(big.Int),
		startTime:      start,
		endTime:        end,
	}
	return ports.SubmitReceipt{
		DistributionID: l.nextID,
		StartTime:      start,
		EndTime:        end,
		TxRef:          fmt.Sprintf("0xsubmit%08d", l.nextID),
	}, nil
}

func (l *Ledger) SubmitFinalize(_ context.Context, distributionID uint64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.FinalizeCalls++
	if l.FinalizeFailures > 0 {
		l.FinalizeFailures--
		return "", errors.New("rpc timeout awaiting confirmation")
	}
	record, exists := l.records[distributionID]
	if !exists {
		return "", fmt.Errorf("unknown distribution %d", distributionID)
	}
	if record.finalized {
		return "", errors.New("execution reverted: already finalized")
	}
	if l.now().Before(record.endTime) {
		return "", errors.New("execution reverted: distribution still active")
	}
	record.finalized = true
	return fmt.Sprintf("0xfinalize%08d", distributionID), nil
}

func (l *Ledger) ReadDistribution(_ context.Context, distributionID uint64) (ports.LedgerState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, exists := l.records[distributionID]
	if !exists {
		return ports.LedgerState{}, fmt.Errorf("unknown distribution %d", distributionID)
	}
	return ports.LedgerState{
		TotalClaimed: new(big.Int).Set(record.totalClaimed),
		Finalized:    record.finalized,
	}, nil
}

func (l *Ledger) ReadVaultRemaining(_ context.Context, vault entities.VaultType) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, exists := l.vaults[vault]
	if !exists {
		return nil, fmt.Errorf("unknown vault %q", vault)
	}
	return new(big.Int).Set(balance), nil
}

func (l *Ledger) now() time.Time {
	if l.clock == nil {
		return time.Now().UTC()
	}
	return l.clock.Now().UTC()
}
