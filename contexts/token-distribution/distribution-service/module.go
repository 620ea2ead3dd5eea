package distributionservice

import (
	"log/slog"
	"time"

	httpadapter "merkledrop/contexts/token-distribution/distribution-service/adapters/http"
	"merkledrop/contexts/token-distribution/distribution-service/adapters/memory"
	"merkledrop/contexts/token-distribution/distribution-service/application/commands"
	"merkledrop/contexts/token-distribution/distribution-service/application/queries"
	"merkledrop/contexts/token-distribution/distribution-service/ports"
)

type Module struct {
	Handler  httpadapter.Handler
	Commands commands.UseCase
	Queries  queries.UseCase

	// Populated by NewInMemoryModule only.
	Store  *memory.Store
	Ledger *memory.Ledger
}

type Dependencies struct {
	Repository    ports.Repository
	Ledger        ports.LedgerClient
	Clock         ports.Clock
	IDGen         ports.IDGenerator
	Outbox        ports.OutboxWriter
	LedgerTimeout time.Duration
	RetrySchedule []time.Duration
	Logger        *slog.Logger
}

func NewModule(deps Dependencies) Module {
	commandUseCase := commands.UseCase{
		Repository:    deps.Repository,
		Ledger:        deps.Ledger,
		Clock:         deps.Clock,
		IDGen:         deps.IDGen,
		Outbox:        deps.Outbox,
		Logger:        deps.Logger,
		LedgerTimeout: deps.LedgerTimeout,
		RetrySchedule: deps.RetrySchedule,
	}
	queryUseCase := queries.UseCase{
		Repository: deps.Repository,
		Clock:      deps.Clock,
		Logger:     deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Commands: commandUseCase,
			Queries:  queryUseCase,
			Clock:    deps.Clock,
			Logger:   deps.Logger,
		},
		Commands: commandUseCase,
		Queries:  queryUseCase,
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	ledger := memory.NewLedger(store)
	module := NewModule(Dependencies{
		Repository: store,
		Ledger:     ledger,
		Clock:      store,
		IDGen:      store,
		Outbox:     store,
		Logger:     logger,
	})
	module.Store = store
	module.Ledger = ledger
	return module
}
