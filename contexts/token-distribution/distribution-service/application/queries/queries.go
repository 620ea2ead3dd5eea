package queries

import (
	"context"
	"errors"
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

// Ineligibility reason codes. Absence from a distribution is a normal answer,
// never an error.
const (
	ReasonNotEligible  = "not_eligible"
	ReasonNotStarted   = "not_started"
	ReasonExpired      = "expired"
	ReasonFinalized    = "finalized"
	ReasonFullyClaimed = "fully_claimed"
)

type ProofResult struct {
	Eligible       bool
	Reason         string
	DistributionID uint64
	Address        string
	LeafIndex      int
	MerkleRoot     string
	Proof          []string
	Allocated      *big.Int
	Claimed        *big.Int
	Claimable      *big.Int
}

type ClaimableResult struct {
	Eligible  bool
	Reason    string
	Status    entities.DistributionStatus
	Claimable *big.Int
}

type DistributionView struct {
	entities.Distribution
	Status entities.DistributionStatus
}

type UseCase struct {
	Repository ports.Repository
	Clock      ports.Clock
	Logger     *slog.Logger
}

// GetProof rebuilds the tree from the persisted leaves (in their original
// order) and returns the sibling path plus the unclaimed remainder. The proof
// is verified locally before it is returned: a proof this dry run rejects
// would also revert on-chain.
func (uc UseCase) GetProof(ctx context.Context, distributionID uint64, rawAddress string) (ProofResult, error) {
	logger := application.ResolveLogger(uc.Logger)

	address, err := normalizeAddress(rawAddress)
	if err != nil {
		return ProofResult{}, err
	}

	distribution, err := uc.Repository.GetDistribution(ctx, distributionID)
	if err != nil {
		return ProofResult{}, err
	}

	leaf, err := uc.Repository.GetLeaf(ctx, distributionID, address)
	if err != nil {
		if errors.Is(err, domainerrors.ErrLeafNotFound) {
			return ProofResult{
				Eligible:       false,
				Reason:         ReasonNotEligible,
				DistributionID: distributionID,
				Address:        address,
			}, nil
		}
		return ProofResult{}, err
	}

	leaves, err := uc.Repository.ListLeaves(ctx, distributionID)
	if err != nil {
		return ProofResult{}, err
	}
	allocations := make([]allocation.Allocation, len(leaves))
	for i, stored := range leaves {
		allocations[i] = allocation.Allocation{
			Address: common.HexToAddress(stored.Address),
			Amount:  stored.AllocatedAmount,
		}
	}

	tree, err := merkle.BuildTree(allocations)
	if err != nil {
		return ProofResult{}, err
	}
	if tree.Root.Hex() != distribution.MerkleRoot {
		metrics.SyncDrift.Inc()
		logger.Error("rebuilt tree root diverged from recorded root",
			"event", "distribution_proof_root_mismatch",
			"module", "token-distribution/distribution-service",
			"layer", "application",
			"distribution_id", distributionID,
			"recorded_root", distribution.MerkleRoot,
			"rebuilt_root", tree.Root.Hex(),
		)
		return ProofResult{}, domainerrors.ErrRootMismatch
	}

	account := common.HexToAddress(address)
	proof, err := tree.Proof(account)
	if err != nil {
		return ProofResult{}, err
	}
	if !merkle.VerifyProof(proof, tree.Root, account, leaf.AllocatedAmount) {
		return ProofResult{}, domainerrors.ErrRootMismatch
	}

	encoded := make([]string, len(proof))
	for i, hash := range proof {
		encoded[i] = hash.Hex()
	}

	logger.Info("proof generated",
		"event", "distribution_proof_generated",
		"module", "token-distribution/distribution-service",
		"layer", "application",
		"distribution_id", distributionID,
		"address", address,
		"leaf_index", leaf.LeafIndex,
		"proof_length", len(encoded),
	)
	return ProofResult{
		Eligible:       true,
		DistributionID: distributionID,
		Address:        address,
		LeafIndex:      leaf.LeafIndex,
		MerkleRoot:     distribution.MerkleRoot,
		Proof:          encoded,
		Allocated:      leaf.AllocatedAmount,
		Claimed:        claimedOrZero(leaf),
		Claimable:      leaf.Claimable(),
	}, nil
}

// GetClaimable answers "can this address claim right now, and how much".
// Every negative answer carries a reason code instead of an error.
func (uc UseCase) GetClaimable(ctx context.Context, distributionID uint64, rawAddress string) (ClaimableResult, error) {
	address, err := normalizeAddress(rawAddress)
	if err != nil {
		return ClaimableResult{}, err
	}

	distribution, err := uc.Repository.GetDistribution(ctx, distributionID)
	if err != nil {
		return ClaimableResult{}, err
	}

	status := distribution.StatusAt(uc.now())
	switch status {
	case entities.DistributionStatusPending:
		return ClaimableResult{Reason: ReasonNotStarted, Status: status, Claimable: new(big.Int)}, nil
	case entities.DistributionStatusExpired:
		return ClaimableResult{Reason: ReasonExpired, Status: status, Claimable: new(big.Int)}, nil
	case entities.DistributionStatusFinalized:
		return ClaimableResult{Reason: ReasonFinalized, Status: status, Claimable: new(big.Int)}, nil
	}

	leaf, err := uc.Repository.GetLeaf(ctx, distributionID, address)
	if err != nil {
		if errors.Is(err, domainerrors.ErrLeafNotFound) {
			return ClaimableResult{Reason: ReasonNotEligible, Status: status, Claimable: new(big.Int)}, nil
		}
		return ClaimableResult{}, err
	}
	if leaf.FullyClaimed() {
		return ClaimableResult{Reason: ReasonFullyClaimed, Status: status, Claimable: new(big.Int)}, nil
	}

	return ClaimableResult{Eligible: true, Status: status, Claimable: leaf.Claimable()}, nil
}

func (uc UseCase) GetDistribution(ctx context.Context, distributionID uint64) (DistributionView, error) {
	distribution, err := uc.Repository.GetDistribution(ctx, distributionID)
	if err != nil {
		return DistributionView{}, err
	}
	return DistributionView{Distribution: distribution, Status: distribution.StatusAt(uc.now())}, nil
}

// ListDistributions lists the mirror for dashboards. Status is derived, so
// the status filter is applied here rather than in storage.
func (uc UseCase) ListDistributions(ctx context.Context, filter ports.ListFilter, status entities.DistributionStatus) ([]DistributionView, error) {
	distributions, err := uc.Repository.ListDistributions(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := uc.now()
	views := make([]DistributionView, 0, len(distributions))
	for _, distribution := range distributions {
		derived := distribution.StatusAt(now)
		if status != "" && derived != status {
			continue
		}
		views = append(views, DistributionView{Distribution: distribution, Status: derived})
	}
	return views, nil
}

func (uc UseCase) GetStats(ctx context.Context) (entities.DistributionStats, error) {
	return uc.Repository.GetStats(ctx, uc.now())
}

func normalizeAddress(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return "", domainerrors.ErrInvalidAddress
	}
	return strings.ToLower(common.HexToAddress(trimmed).Hex()), nil
}

func claimedOrZero(leaf entities.Leaf) *big.Int {
	if leaf.ClaimedAmount == nil {
		return new(big.Int)
	}
	return leaf.ClaimedAmount
}

func (uc UseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
