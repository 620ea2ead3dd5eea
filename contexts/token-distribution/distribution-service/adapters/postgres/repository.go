package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"merkledrop/contexts/token-distribution/distribution-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/distribution-service/domain/errors"
	"merkledrop/contexts/token-distribution/distribution-service/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const uniqueViolationCode = "23505"

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

// RecordDistribution writes the distribution row and every leaf row in one
// transaction; a distribution with a partial leaf set must never be readable.
func (r *Repository) RecordDistribution(ctx context.Context, distribution entities.Distribution, leaves []entities.Leaf) error {
	row, err := distributionModelFromEntity(distribution)
	if err != nil {
		return err
	}
	leafRows := make([]leafModel, len(leaves))
	for i, leaf := range leaves {
		leafRows[i], err = leafModelFromEntity(leaf)
		if err != nil {
			return err
		}
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if len(leafRows) == 0 {
			return nil
		}
		return tx.CreateInBatches(leafRows, 500).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			r.logWarn("distribution_repo_record_unique_conflict",
				"distribution_id", distribution.ID,
			)
			return domainerrors.ErrDistributionExists
		}
		return r.logError("distribution_repo_record_failed", err,
			"distribution_id", distribution.ID,
			"leaf_count", len(leaves),
		)
	}
	return nil
}

func (r *Repository) GetDistribution(ctx context.Context, distributionID uint64) (entities.Distribution, error) {
	var row distributionModel
	err := r.db.WithContext(ctx).
		Where("id = ?", distributionID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Distribution{}, domainerrors.ErrDistributionNotFound
		}
		return entities.Distribution{}, r.logError("distribution_repo_get_failed", err,
			"distribution_id", distributionID,
		)
	}
	return row.toEntity()
}

func (r *Repository) ListDistributions(ctx context.Context, filter ports.ListFilter) ([]entities.Distribution, error) {
	query := r.db.WithContext(ctx).Model(&distributionModel{}).Order("start_time DESC, id DESC")
	if filter.VaultType != "" {
		query = query.Where("vault_type = ?", string(filter.VaultType))
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []distributionModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, r.logError("distribution_repo_list_failed", err,
			"vault_type", string(filter.VaultType),
		)
	}
	distributions := make([]entities.Distribution, 0, len(rows))
	for _, row := range rows {
		distribution, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		distributions = append(distributions, distribution)
	}
	return distributions, nil
}

type statsRow struct {
	Total          int
	Pending        int
	Active         int
	Expired        int
	Finalized      int
	TotalAllocated string
	TotalClaimed   string
}

func (r *Repository) GetStats(ctx context.Context, now time.Time) (entities.DistributionStats, error) {
	utc := now.UTC()
	var row statsRow
	err := r.db.WithContext(ctx).
		Model(&distributionModel{}).
		Select(`COUNT(*) AS total,
			COUNT(*) FILTER (WHERE NOT finalized AND ? < start_time) AS pending,
			COUNT(*) FILTER (WHERE NOT finalized AND start_time <= ? AND ? < end_time) AS active,
			COUNT(*) FILTER (WHERE NOT finalized AND end_time <= ?) AS expired,
			COUNT(*) FILTER (WHERE finalized) AS finalized,
			COALESCE(SUM(total_allocated), 0)::text AS total_allocated,
			COALESCE(SUM(total_claimed), 0)::text AS total_claimed`,
			utc, utc, utc, utc).
		Scan(&row).
		Error
	if err != nil {
		return entities.DistributionStats{}, r.logError("distribution_repo_stats_failed", err)
	}

	totalAllocated, err := parseAmount(row.TotalAllocated)
	if err != nil {
		return entities.DistributionStats{}, err
	}
	totalClaimed, err := parseAmount(row.TotalClaimed)
	if err != nil {
		return entities.DistributionStats{}, err
	}
	return entities.DistributionStats{
		Total:          row.Total,
		Pending:        row.Pending,
		Active:         row.Active,
		Expired:        row.Expired,
		Finalized:      row.Finalized,
		TotalAllocated: totalAllocated,
		TotalClaimed:   totalClaimed,
	}, nil
}

func (r *Repository) ListExpiredUnfinalized(ctx context.Context, now time.Time, limit int) ([]entities.Distribution, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []distributionModel
	if err := r.db.WithContext(ctx).
		Where("finalized = ?", false).
		Where("end_time <= ?", now.UTC()).
		Order("end_time ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("distribution_repo_list_expired_failed", err,
			"threshold_utc", now.UTC().Format(time.RFC3339),
		)
	}
	distributions := make([]entities.Distribution, 0, len(rows))
	for _, row := range rows {
		distribution, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		distributions = append(distributions, distribution)
	}
	return distributions, nil
}

func (r *Repository) GetLeaf(ctx context.Context, distributionID uint64, address string) (entities.Leaf, error) {
	var row leafModel
	err := r.db.WithContext(ctx).
		Where("distribution_id = ?", distributionID).
		Where("address = ?", strings.ToLower(strings.TrimSpace(address))).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Leaf{}, domainerrors.ErrLeafNotFound
		}
		return entities.Leaf{}, r.logError("distribution_repo_get_leaf_failed", err,
			"distribution_id", distributionID,
			"address", strings.ToLower(strings.TrimSpace(address)),
		)
	}
	return row.toEntity()
}

func (r *Repository) ListLeaves(ctx context.Context, distributionID uint64) ([]entities.Leaf, error) {
	var rows []leafModel
	if err := r.db.WithContext(ctx).
		Where("distribution_id = ?", distributionID).
		Order("leaf_index ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("distribution_repo_list_leaves_failed", err,
			"distribution_id", distributionID,
		)
	}
	if len(rows) == 0 {
		return nil, domainerrors.ErrDistributionNotFound
	}
	leaves := make([]entities.Leaf, 0, len(rows))
	for _, row := range rows {
		leaf, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	return leaves, nil
}

// UpsertClaimState overwrites the leaf's cumulative claim figure and moves
// the distribution's running total by the delta, all in one transaction.
func (r *Repository) UpsertClaimState(ctx context.Context, distributionID uint64, address string, claimed *big.Int, txRef string, at time.Time) error {
	normalized := strings.ToLower(strings.TrimSpace(address))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row leafModel
		if err := tx.
			Where("distribution_id = ?", distributionID).
			Where("address = ?", normalized).
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrLeafNotFound
			}
			return err
		}
		previous, err := parseAmount(row.ClaimedAmount)
		if err != nil {
			return err
		}
		delta := new(big.Int).Sub(claimed, previous)

		claimTime := at.UTC()
		if err := tx.Model(&leafModel{}).
			Where("distribution_id = ?", distributionID).
			Where("address = ?", normalized).
			Updates(map[string]any{
				"claimed_amount":    claimed.String(),
				"claim_count":       gorm.Expr("claim_count + 1"),
				"last_claim_tx_ref": strings.TrimSpace(txRef),
				"last_claim_time":   claimTime,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&distributionModel{}).
			Where("id = ?", distributionID).
			Updates(map[string]any{
				"total_claimed": gorm.Expr("total_claimed + ?::numeric", delta.String()),
				"updated_at":    claimTime,
			}).Error
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrLeafNotFound) {
			return err
		}
		return r.logError("distribution_repo_upsert_claim_failed", err,
			"distribution_id", distributionID,
			"address", normalized,
		)
	}
	return nil
}

func (r *Repository) UpdateLedgerState(ctx context.Context, distributionID uint64, totalClaimed *big.Int, finalized bool, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&distributionModel{}).
		Where("id = ?", distributionID).
		Updates(map[string]any{
			"total_claimed": totalClaimed.String(),
			"finalized":     gorm.Expr("finalized OR ?", finalized),
			"updated_at":    at.UTC(),
		})
	if result.Error != nil {
		return r.logError("distribution_repo_update_ledger_state_failed", result.Error,
			"distribution_id", distributionID,
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrDistributionNotFound
	}
	return nil
}

func (r *Repository) MarkFinalized(ctx context.Context, distributionID uint64, txRef string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&distributionModel{}).
		Where("id = ?", distributionID).
		Updates(map[string]any{
			"finalized":       true,
			"finalize_tx_ref": strings.TrimSpace(txRef),
			"updated_at":      at.UTC(),
		})
	if result.Error != nil {
		return r.logError("distribution_repo_mark_finalized_failed", result.Error,
			"distribution_id", distributionID,
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrDistributionNotFound
	}
	return nil
}

func (r *Repository) GetFinalizationAttempt(ctx context.Context, distributionID uint64) (entities.FinalizationAttempt, error) {
	var row finalizationAttemptModel
	err := r.db.WithContext(ctx).
		Where("distribution_id = ?", distributionID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.FinalizationAttempt{}, domainerrors.ErrAttemptNotFound
		}
		return entities.FinalizationAttempt{}, r.logError("distribution_repo_get_attempt_failed", err,
			"distribution_id", distributionID,
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) UpsertFinalizationAttempt(ctx context.Context, attempt entities.FinalizationAttempt) error {
	row := finalizationAttemptModelFromEntity(attempt)
	err := r.db.WithContext(ctx).Save(&row).Error
	if err != nil {
		return r.logError("distribution_repo_upsert_attempt_failed", err,
			"distribution_id", attempt.DistributionID,
		)
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, event ports.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:  event.EventID,
		EventType: event.EventType,
		Payload:   payload,
		CreatedAt: event.OccurredAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("distribution_repo_outbox_append_failed", err,
			"event_id", event.EventID,
			"event_type", event.EventType,
		)
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("distribution_repo_outbox_list_failed", err)
	}
	messages := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, ports.OutboxMessage{
			OutboxID:    row.OutboxID,
			EventType:   row.EventType,
			Payload:     append([]byte(nil), row.Payload...),
			CreatedAt:   row.CreatedAt,
			PublishedAt: row.PublishedAt,
		})
	}
	return messages, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, at time.Time) error {
	sent := at.UTC()
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Update("published_at", &sent)
	if result.Error != nil {
		return r.logError("distribution_repo_outbox_mark_sent_failed", result.Error,
			"outbox_id", outboxID,
		)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func parseAmount(raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return new(big.Int), nil
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("malformed numeric value %q", raw)
	}
	return amount, nil
}

func (r *Repository) logError(event string, cause error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "token-distribution/distribution-service",
		"layer", "adapter",
		"error", cause.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("distribution repository failure", fields...)
	return cause
}

func (r *Repository) logWarn(event string, attrs ...any) {
	fields := make([]any, 0, len(attrs)+6)
	fields = append(fields,
		"event", event,
		"module", "token-distribution/distribution-service",
		"layer", "adapter",
	)
	fields = append(fields, attrs...)
	r.logger.Warn("distribution repository warning", fields...)
}
