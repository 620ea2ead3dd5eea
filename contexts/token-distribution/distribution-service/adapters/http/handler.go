package httpadapter

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"merkledrop/contexts/token-distribution/distribution-service/application/commands"
	"merkledrop/contexts/token-distribution/distribution-service/application/queries"
	"merkledrop/contexts/token-distribution/distribution-service/domain/allocation"
	"merkledrop/contexts/token-distribution/distribution-service/domain/entities"
	"merkledrop/contexts/token-distribution/distribution-service/ports"
	httptransport "merkledrop/contexts/token-distribution/distribution-service/transport/http"
)

type Handler struct {
	Commands commands.UseCase
	Queries  queries.UseCase
	Clock    ports.Clock
	Logger   *slog.Logger
}

func (h Handler) now() time.Time {
	if h.Clock == nil {
		return time.Now().UTC()
	}
	return h.Clock.Now().UTC()
}

func (h Handler) CreateDistributionHandler(ctx context.Context, req httptransport.CreateDistributionRequest) (httptransport.CreateDistributionResponse, error) {
	inputs := make([]allocation.Input, 0, len(req.Allocations))
	for _, item := range req.Allocations {
		inputs = append(inputs, allocation.Input{
			Address: item.Address,
			Amount:  item.Amount,
		})
	}
	distribution, err := h.Commands.CreateDistribution(ctx, commands.CreateDistributionCommand{
		Allocations:  inputs,
		VaultType:    req.VaultType,
		DurationDays: req.DurationDays,
		Metadata:     req.Metadata,
	})
	if err != nil {
		return httptransport.CreateDistributionResponse{}, err
	}
	return httptransport.CreateDistributionResponse{
		Distribution: mapDistribution(distribution, distribution.StatusAt(h.now())),
	}, nil
}

func (h Handler) ListDistributionsHandler(ctx context.Context, vaultType string, status string, limit int, offset int) (httptransport.ListDistributionsResponse, error) {
	views, err := h.Queries.ListDistributions(ctx, ports.ListFilter{
		VaultType: entities.VaultType(strings.ToLower(strings.TrimSpace(vaultType))),
		Limit:     limit,
		Offset:    offset,
	}, entities.DistributionStatus(strings.ToLower(strings.TrimSpace(status))))
	if err != nil {
		return httptransport.ListDistributionsResponse{}, err
	}
	items := make([]httptransport.DistributionDTO, 0, len(views))
	for _, view := range views {
		items = append(items, mapDistribution(view.Distribution, view.Status))
	}
	return httptransport.ListDistributionsResponse{Items: items}, nil
}

func (h Handler) GetDistributionHandler(ctx context.Context, distributionID uint64) (httptransport.GetDistributionResponse, error) {
	view, err := h.Queries.GetDistribution(ctx, distributionID)
	if err != nil {
		return httptransport.GetDistributionResponse{}, err
	}
	return httptransport.GetDistributionResponse{
		Distribution: mapDistribution(view.Distribution, view.Status),
	}, nil
}

func (h Handler) GetStatsHandler(ctx context.Context) (httptransport.StatsResponse, error) {
	stats, err := h.Queries.GetStats(ctx)
	if err != nil {
		return httptransport.StatsResponse{}, err
	}
	return httptransport.StatsResponse{
		Total:          stats.Total,
		Pending:        stats.Pending,
		Active:         stats.Active,
		Expired:        stats.Expired,
		Finalized:      stats.Finalized,
		TotalAllocated: amountString(stats.TotalAllocated),
		TotalClaimed:   amountString(stats.TotalClaimed),
	}, nil
}

func (h Handler) GetProofHandler(ctx context.Context, distributionID uint64, address string) (httptransport.ProofResponse, error) {
	result, err := h.Queries.GetProof(ctx, distributionID, address)
	if err != nil {
		return httptransport.ProofResponse{}, err
	}
	proof := result.Proof
	if proof == nil {
		proof = []string{}
	}
	return httptransport.ProofResponse{
		Eligible:       result.Eligible,
		Reason:         result.Reason,
		DistributionID: result.DistributionID,
		Address:        result.Address,
		LeafIndex:      result.LeafIndex,
		MerkleRoot:     result.MerkleRoot,
		Proof:          proof,
		Allocated:      amountString(result.Allocated),
		Claimed:        amountString(result.Claimed),
		Claimable:      amountString(result.Claimable),
	}, nil
}

func (h Handler) GetClaimableHandler(ctx context.Context, distributionID uint64, address string) (httptransport.ClaimableResponse, error) {
	result, err := h.Queries.GetClaimable(ctx, distributionID, address)
	if err != nil {
		return httptransport.ClaimableResponse{}, err
	}
	return httptransport.ClaimableResponse{
		Eligible:  result.Eligible,
		Reason:    result.Reason,
		Status:    string(result.Status),
		Claimable: amountString(result.Claimable),
	}, nil
}

func (h Handler) SyncHandler(ctx context.Context, distributionID uint64) (httptransport.SyncResponse, error) {
	distribution, err := h.Commands.SyncFromLedger(ctx, distributionID)
	if err != nil {
		return httptransport.SyncResponse{}, err
	}
	return httptransport.SyncResponse{
		Distribution: mapDistribution(distribution, distribution.StatusAt(h.now())),
	}, nil
}

func (h Handler) FinalizeHandler(ctx context.Context, distributionID uint64) (httptransport.FinalizeResponse, error) {
	attempt, err := h.Commands.Finalize(ctx, commands.FinalizeCommand{
		DistributionID: distributionID,
		ExecutionType:  entities.ExecutionManual,
	})
	if err != nil {
		return httptransport.FinalizeResponse{}, err
	}
	return mapAttempt(attempt), nil
}

func mapDistribution(item entities.Distribution, status entities.DistributionStatus) httptransport.DistributionDTO {
	return httptransport.DistributionDTO{
		ID:             item.ID,
		MerkleRoot:     item.MerkleRoot,
		VaultType:      string(item.VaultType),
		Status:         string(status),
		TotalAllocated: amountString(item.TotalAllocated),
		TotalClaimed:   amountString(item.TotalClaimed),
		RecipientCount: item.RecipientCount,
		StartTime:      item.StartTime.UTC().Format(time.RFC3339),
		EndTime:        item.EndTime.UTC().Format(time.RFC3339),
		Finalized:      item.Finalized,
		SubmitTxRef:    item.SubmitTxRef,
		FinalizeTxRef:  item.FinalizeTxRef,
		Metadata:       item.Metadata,
		CreatedAt:      item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func mapAttempt(attempt entities.FinalizationAttempt) httptransport.FinalizeResponse {
	nextRetry := ""
	if attempt.NextRetryAt != nil {
		nextRetry = attempt.NextRetryAt.UTC().Format(time.RFC3339)
	}
	return httptransport.FinalizeResponse{
		DistributionID: attempt.DistributionID,
		Status:         string(attempt.Status),
		TxRef:          attempt.TxRef,
		RetryCount:     attempt.RetryCount,
		NextRetryAt:    nextRetry,
		LastError:      attempt.LastError,
		ExecutionType:  string(attempt.ExecutionType),
	}
}

func amountString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
