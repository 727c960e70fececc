// Package store selects the persistence strategy once and assembles the
// repositories every service consumes.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/household-ledger/internal/config"
	"github.com/household-ledger/internal/data/documents"
	mongorepo "github.com/household-ledger/internal/data/mongo"
	"github.com/household-ledger/internal/data/postgres"
	"github.com/household-ledger/internal/data/sqlite"
	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/shared"
	"github.com/household-ledger/internal/platform/docstore"
	"github.com/household-ledger/internal/platform/persistence"
)

const hubBuffer = 16

// Stores bundles one document port with the repositories built on it.
type Stores struct {
	Port         docstore.Port
	Ledgers      *documents.LedgerRepository
	Profiles     *documents.ProfileRepository
	Templates    *documents.TemplateRepository
	Transactions ledger.TransactionRepository
	// Reaper is only available on the remote store.
	Reaper *postgres.ReaperRepository

	closers []func(ctx context.Context) error
}

// Mode reports which strategy the stores are bound to.
func (s *Stores) Mode() string {
	return s.Port.Mode()
}

// Open builds the stores for mode. It never falls back on its own; callers that
// want the local fallback call OpenLocal after a PersistenceUnavailable error.
func Open(ctx context.Context, logger *slog.Logger, cfg *config.Config, mode string) (*Stores, error) {
	switch mode {
	case config.StoreModeRemote:
		return OpenRemote(ctx, logger, cfg)
	case config.StoreModeLocal:
		return OpenLocal(logger, cfg)
	default:
		return nil, fmt.Errorf("unknown store mode %q", mode)
	}
}

// OpenRemote connects to PostgreSQL (documents) and MongoDB (transaction log) and
// starts the change listener. Connection failures are reported as PersistenceUnavailable.
func OpenRemote(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*Stores, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Store.ConnectTimeout)
	defer cancel()

	pg, err := persistence.NewPostgresDB(connectCtx, logger, &cfg.Postgres)
	if err != nil {
		return nil, shared.Unavailable("openRemoteStore", err)
	}
	mdb, err := persistence.NewMongoDB(connectCtx, logger, &cfg.MongoDB)
	if err != nil {
		pg.Close()
		return nil, shared.Unavailable("openRemoteStore", err)
	}

	port := postgres.NewDocumentStore(logger.With("component", "document_store"), pg, docstore.NewHub(hubBuffer), retryPolicy(cfg))
	txRepo := mongorepo.NewTransactionRepository(logger.With("component", "transaction_log"), mdb.Database())
	if err := txRepo.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("Failed to ensure transaction indexes", "error", err)
	}

	listenCtx, stopListener := context.WithCancel(context.Background())
	listener := postgres.NewChangeListener(logger.With("component", "change_listener"), pg, port)
	done := make(chan struct{})
	go func() {
		defer close(done)
		listener.Start(listenCtx)
	}()

	s := newStores(logger, port, txRepo)
	s.Reaper = postgres.NewReaperRepository(logger.With("component", "reaper_repository"), pg)
	s.closers = []func(context.Context) error{
		func(context.Context) error {
			stopListener()
			<-done
			return port.Close()
		},
		mdb.Close,
		func(context.Context) error {
			pg.Close()
			return nil
		},
	}
	logger.Info("Remote store ready")
	return s, nil
}

// OpenLocal opens the sqlite fallback store at cfg.Store.LocalPath.
func OpenLocal(logger *slog.Logger, cfg *config.Config) (*Stores, error) {
	port, err := sqlite.NewDocumentStore(logger.With("component", "local_store"), cfg.Store.LocalPath, docstore.NewHub(hubBuffer))
	if err != nil {
		return nil, err
	}
	txRepo := documents.NewTransactionRepository(logger, port)
	s := newStores(logger, port, txRepo)
	s.closers = []func(context.Context) error{func(context.Context) error { return port.Close() }}
	logger.Info("Local store ready", "path", cfg.Store.LocalPath)
	return s, nil
}

// FromPort assembles stores over an already opened port, keeping transactions
// in the port itself.
func FromPort(logger *slog.Logger, port docstore.Port) *Stores {
	s := newStores(logger, port, documents.NewTransactionRepository(logger, port))
	s.closers = []func(context.Context) error{func(context.Context) error { return port.Close() }}
	return s
}

func newStores(logger *slog.Logger, port docstore.Port, txRepo ledger.TransactionRepository) *Stores {
	return &Stores{
		Port:         port,
		Ledgers:      documents.NewLedgerRepository(logger, port),
		Profiles:     documents.NewProfileRepository(logger, port),
		Templates:    documents.NewTemplateRepository(logger, port),
		Transactions: txRepo,
	}
}

// Close releases every backing connection in order.
func (s *Stores) Close(ctx context.Context) error {
	var errs []error
	for _, c := range s.closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func retryPolicy(cfg *config.Config) docstore.RetryPolicy {
	return docstore.RetryPolicy{
		MaxAttempts: cfg.Store.UpdateMaxAttempts,
		Backoff:     cfg.Store.UpdateBackoff,
	}
}
