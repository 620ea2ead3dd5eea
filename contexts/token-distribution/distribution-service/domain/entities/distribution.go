package entities

import (
	"math/big"
	"time"
)

// VaultType names the funding pool on the distributor contract that backs a
// distribution.
type VaultType string

const (
	VaultGameRewards   VaultType = "game_rewards"
	VaultSocialRewards VaultType = "social_rewards"
	VaultEcosystemFund VaultType = "ecosystem_fund"
)

func (v VaultType) Valid() bool {
	switch v {
	case VaultGameRewards, VaultSocialRewards, VaultEcosystemFund:
		return true
	default:
		return false
	}
}

// DistributionStatus is derived from (finalized, now, startTime, endTime),
// never stored independently.
type DistributionStatus string

const (
	DistributionStatusPending   DistributionStatus = "pending"
	DistributionStatusActive    DistributionStatus = "active"
	DistributionStatusExpired   DistributionStatus = "expired"
	DistributionStatusFinalized DistributionStatus = "finalized"
)

// Distribution is the off-chain mirror of one on-chain distribution. The
// ledger-assigned id is the primary key; the ledger stays the source of truth
// for claimed totals and finalization.
type Distribution struct {
	ID             uint64
	MerkleRoot     string
	VaultType      VaultType
	TotalAllocated *big.Int
	TotalClaimed   *big.Int
	RecipientCount int
	StartTime      time.Time
	EndTime        time.Time
	Finalized      bool
	SubmitTxRef    string
	FinalizeTxRef  string
	Metadata       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StatusAt derives the lifecycle status. Finalized is terminal and wins over
// every time-based state.
func (d Distribution) StatusAt(now time.Time) DistributionStatus {
	switch {
	case d.Finalized:
		return DistributionStatusFinalized
	case now.Before(d.StartTime):
		return DistributionStatusPending
	case now.Before(d.EndTime):
		return DistributionStatusActive
	default:
		return DistributionStatusExpired
	}
}

// Leaf is one recipient's entitlement inside a distribution. Created
// atomically with its siblings, mutated only by claim sync, never deleted.
type Leaf struct {
	DistributionID  uint64
	Address         string
	AllocatedAmount *big.Int
	LeafHash        string
	LeafIndex       int
	ClaimedAmount   *big.Int
	ClaimCount      int
	LastClaimTxRef  string
	LastClaimTime   *time.Time
}

func (l Leaf) FullyClaimed() bool {
	return l.ClaimedAmount != nil && l.AllocatedAmount != nil &&
		l.ClaimedAmount.Cmp(l.AllocatedAmount) == 0
}

// Claimable returns the unclaimed remainder.
func (l Leaf) Claimable() *big.Int {
	if l.AllocatedAmount == nil {
		return new(big.Int)
	}
	if l.ClaimedAmount == nil {
		return new(big.Int).Set(l.AllocatedAmount)
	}
	return new(big.Int).Sub(l.AllocatedAmount, l.ClaimedAmount)
}

type AttemptStatus string

const (
	AttemptStatusFailed  AttemptStatus = "failed"
	AttemptStatusSuccess AttemptStatus = "success"
	AttemptStatusSkipped AttemptStatus = "skipped"
)

type ExecutionType string

const (
	ExecutionAuto   ExecutionType = "auto"
	ExecutionManual ExecutionType = "manual"
)

// FinalizationAttempt is the retry bookkeeping for one distribution. Once the
// status is success or skipped no further attempts are scheduled.
type FinalizationAttempt struct {
	DistributionID uint64
	Status         AttemptStatus
	TxRef          string
	RetryCount     int
	NextRetryAt    *time.Time
	LastError      string
	ExecutionType  ExecutionType
	UpdatedAt      time.Time
}

func (a FinalizationAttempt) Terminal() bool {
	return a.Status == AttemptStatusSuccess || a.Status == AttemptStatusSkipped
}

// DistributionStats is the read-only dashboard aggregate.
type DistributionStats struct {
	Total          int
	Pending        int
	Active         int
	Expired        int
	Finalized      int
	TotalAllocated *big.Int
	TotalClaimed   *big.Int
}
