package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/household-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5/pgxpool"
)

const changeChannel = "document_changes"

var reconnectDelay = time.Second

// ChangeListener turns document_changes notifications into hub snapshots so
// subscribers see writes made by other processes.
type ChangeListener struct {
	pool   *pgxpool.Pool
	store  *DocumentStore
	logger *slog.Logger
}

func NewChangeListener(logger *slog.Logger, db *persistence.PostgresDB, store *DocumentStore) *ChangeListener {
	return &ChangeListener{
		pool:   db.Pool(),
		store:  store,
		logger: logger,
	}
}

// Start listens until ctx is cancelled, reconnecting after connection failures.
func (l *ChangeListener) Start(ctx context.Context) {
	l.logger.Info("Starting document change listener", "channel", changeChannel)
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			l.logger.Info("Document change listener stopped")
			return
		}
		l.logger.Error("Document change listener disconnected", "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (l *ChangeListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", changeChannel, err)
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		change, err := parseDocumentChange(notification.Payload)
		if err != nil {
			l.logger.Warn("Ignoring malformed change notification", "payload", notification.Payload, "error", err)
			continue
		}
		l.store.publishRemote(ctx, change)
	}
}

func parseDocumentChange(payload string) (documentChange, error) {
	var change documentChange
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return change, fmt.Errorf("failed to decode change: %w", err)
	}
	if change.Collection == "" || change.ID == "" {
		return change, fmt.Errorf("change is missing collection or id")
	}
	return change, nil
}
