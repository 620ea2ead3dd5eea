package workers

import (
	"context"
	"errors"
	"log/slog"

	application "merkledrop/contexts/token-distribution/distribution-service/application"
	"merkledrop/contexts/token-distribution/distribution-service/application/commands"
	"merkledrop/contexts/token-distribution/distribution-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/distribution-service/domain/errors"
	"merkledrop/contexts/token-distribution/distribution-service/ports"
	"merkledrop/internal/platform/metrics"
)

// FinalizerJob sweeps for expired, unfinalized distributions each tick and
// drives them through the finalize command. The command owns the attempt
// record; the sweep only decides what is due and when retries are exhausted.
type FinalizerJob struct {
	Commands   commands.UseCase
	Repository ports.Repository
	Clock      ports.Clock
	BatchSize  int
	MaxRetries int
	Logger     *slog.Logger
}

func (j FinalizerJob) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(j.Logger)
	limit := j.BatchSize
	if limit <= 0 {
		limit = 100
	}
	maxRetries := j.MaxRetries
	if maxRetries <= 0 {
		maxRetries = commands.DefaultMaxRetries
	}
	now := j.Clock.Now().UTC()

	candidates, err := j.Repository.ListExpiredUnfinalized(ctx, now, limit)
	if err != nil {
		logger.Error("finalizer candidate listing failed",
			"event", "distribution_finalizer_list_failed",
			"module", "token-distribution/distribution-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	processed := 0
	for _, candidate := range candidates {
		attempt, err := j.Repository.GetFinalizationAttempt(ctx, candidate.ID)
		if err != nil && !errors.Is(err, domainerrors.ErrAttemptNotFound) {
			return err
		}
		if attempt.Terminal() {
			continue
		}
		if attempt.NextRetryAt != nil && now.Before(*attempt.NextRetryAt) {
			continue
		}
		// Exhausted retries are marked skipped here, before another ledger
		// call, so the last error stays available for operator inspection.
		if attempt.RetryCount >= maxRetries {
			attempt.DistributionID = candidate.ID
			attempt.Status = entities.AttemptStatusSkipped
			attempt.NextRetryAt = nil
			attempt.ExecutionType = entities.ExecutionAuto
			attempt.UpdatedAt = now
			if err := j.Repository.UpsertFinalizationAttempt(ctx, attempt); err != nil {
				return err
			}
			metrics.FinalizationAttempts.WithLabelValues("skipped").Inc()
			logger.Warn("finalization retries exhausted",
				"event", "distribution_finalizer_retries_exhausted",
				"module", "token-distribution/distribution-service",
				"layer", "worker",
				"distribution_id", candidate.ID,
				"retry_count", attempt.RetryCount,
				"last_error", attempt.LastError,
			)
			continue
		}

		processed++
		_, err = j.Commands.Finalize(ctx, commands.FinalizeCommand{
			DistributionID: candidate.ID,
			ExecutionType:  entities.ExecutionAuto,
		})
		switch {
		case err == nil:
		case errors.Is(err, domainerrors.ErrAlreadyFinalized):
			// Raced with a manual finalize between sweeps; the command has
			// already recorded the skip.
		case errors.Is(err, domainerrors.ErrLedgerSubmission):
			logger.Warn("scheduled finalization failed, retry scheduled",
				"event", "distribution_finalizer_attempt_failed",
				"module", "token-distribution/distribution-service",
				"layer", "worker",
				"distribution_id", candidate.ID,
				"error", err.Error(),
			)
		default:
			return err
		}
	}

	if len(candidates) > 0 {
		logger.Info("finalizer sweep completed",
			"event", "distribution_finalizer_sweep_completed",
			"module", "token-distribution/distribution-service",
			"layer", "worker",
			"candidate_count", len(candidates),
			"attempted_count", processed,
		)
	}
	return nil
}
