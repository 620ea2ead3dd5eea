package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	distributionservice "merkledrop/contexts/token-distribution/distribution-service"
	ledgeradapter "merkledrop/contexts/token-distribution/distribution-service/adapters/ledger"
	postgresadapter "merkledrop/contexts/token-distribution/distribution-service/adapters/postgres"
	workerapp "merkledrop/contexts/token-distribution/distribution-service/application/workers"
	"merkledrop/internal/platform/config"
	"merkledrop/internal/platform/db"
	"merkledrop/internal/platform/httpserver"
	"merkledrop/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	ledger   *ledgeradapter.EVMLedger
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres      *db.Postgres
	ledger        *ledgeradapter.EVMLedger
	finalizer     workerapp.FinalizerJob
	outboxRelay   workerapp.OutboxRelay
	claimConsumer workerapp.ClaimedConsumer

	enableFinalizer     bool
	enableOutboxRelay   bool
	enableClaimConsumer bool
	pollInterval        time.Duration
	logger              *slog.Logger
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	pg, ledger, module, err := buildModule(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		ledger:   ledger,
		logger:   logger,
	}, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	pg, ledger, module, err := buildModule(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	return &WorkerApp{
		postgres: pg,
		ledger:   ledger,
		finalizer: workerapp.FinalizerJob{
			Commands:   module.Commands,
			Repository: repo,
			Clock:      postgresadapter.SystemClock{},
			BatchSize:  cfg.SchedulerBatchSize,
			MaxRetries: cfg.FinalizeMaxRetries,
			Logger:     logger,
		},
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: kafka,
			Clock:     postgresadapter.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		claimConsumer: workerapp.ClaimedConsumer{
			Subscriber:    kafka,
			Commands:      module.Commands,
			ConsumerGroup: "distribution-claimed-cg",
			Logger:        logger,
		},
		enableFinalizer:     cfg.EnableFinalizerJob,
		enableOutboxRelay:   cfg.EnableOutboxRelay,
		enableClaimConsumer: cfg.EnableClaimConsumer,
		pollInterval:        cfg.SchedulerPollInterval,
		logger:              logger,
	}, nil
}

func buildModule(ctx context.Context, cfg config.Config, logger *slog.Logger) (*db.Postgres, *ledgeradapter.EVMLedger, distributionservice.Module, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, nil, distributionservice.Module{}, errors.New("POSTGRES_DSN is required")
	}
	if strings.TrimSpace(cfg.LedgerRPCURL) == "" {
		return nil, nil, distributionservice.Module{}, errors.New("LEDGER_RPC_URL is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, distributionservice.Module{}, err
	}

	ledger, err := ledgeradapter.NewEVMLedger(ctx, ledgeradapter.Config{
		RPCURL:          cfg.LedgerRPCURL,
		ContractAddress: cfg.LedgerContract,
		PrivateKeyHex:   cfg.LedgerPrivateKey,
		ChainID:         cfg.LedgerChainID,
	}, logger)
	if err != nil {
		_ = pg.Close()
		return nil, nil, distributionservice.Module{}, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	module := distributionservice.NewModule(distributionservice.Dependencies{
		Repository:    repo,
		Ledger:        ledger,
		Clock:         postgresadapter.SystemClock{},
		IDGen:         postgresadapter.UUIDGenerator{},
		Outbox:        repo,
		LedgerTimeout: cfg.LedgerTimeout,
		RetrySchedule: cfg.FinalizeRetrySchedule,
		Logger:        logger,
	})
	return pg, ledger, module, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if w.enableClaimConsumer {
		if err := w.claimConsumer.Start(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if w.enableFinalizer {
			if err := w.finalizer.RunOnce(ctx); err != nil {
				return err
			}
		}
		if w.enableOutboxRelay {
			if err := w.outboxRelay.RunOnce(ctx); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.ledger != nil {
		w.ledger.Close()
	}
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
