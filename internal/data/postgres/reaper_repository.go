package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/household-ledger/internal/platform/docstore"
	"github.com/household-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

// abandonedLedgerCondition matches ledgers with no members whose deletion marker
// lies before $2 (the reference time).
const abandonedLedgerCondition = `COALESCE(data->'members', '[]'::jsonb) IN ('[]'::jsonb, 'null'::jsonb)
		AND data ? 'scheduledDeleteAt'
		AND (data->>'scheduledDeleteAt')::timestamptz < $2`

// ReaperRepository runs the privileged queries of the abandoned-ledger sweep.
type ReaperRepository struct {
	db     persistence.TxBeginner
	logger *slog.Logger
}

func NewReaperRepository(logger *slog.Logger, db *persistence.PostgresDB) *ReaperRepository {
	return &ReaperRepository{
		db:     db.Pool(),
		logger: logger,
	}
}

// ListAbandoned returns up to limit ids of ledgers eligible for deletion at before.
func (r *ReaperRepository) ListAbandoned(ctx context.Context, before time.Time, limit int) ([]string, error) {
	query := `
		SELECT id
		FROM documents
		WHERE collection = $1
		AND ` + abandonedLedgerCondition + `
		ORDER BY id ASC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, docstore.LedgersCollection, before, limit)
	if err != nil {
		r.logger.Error("Failed to list abandoned ledgers", "error", err)
		return nil, fmt.Errorf("failed to list abandoned ledgers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ledger id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over abandoned ledgers: %w", err)
	}
	return ids, nil
}

// DeleteAbandoned removes the ledger and its sub-collections if it still matches
// the abandonment condition when the row is deleted. A concurrent join holding the
// row lock makes the condition re-evaluate against the joined state, so the
// ledger survives. It reports whether the ledger was deleted.
func (r *ReaperRepository) DeleteAbandoned(ctx context.Context, ledgerID string, before time.Time) (bool, error) {
	deleted := false
	err := persistence.RunInTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			DELETE FROM documents
			WHERE collection = $1 AND id = $3
			AND ` + abandonedLedgerCondition + `
		`
		result, err := tx.Exec(ctx, query, docstore.LedgersCollection, before, ledgerID)
		if err != nil {
			return fmt.Errorf("failed to delete ledger %s: %w", ledgerID, err)
		}
		if result.RowsAffected() == 0 {
			return nil
		}
		deleted = true

		subQuery := `
			DELETE FROM documents
			WHERE collection = ANY($1)
		`
		subCollections := []string{
			docstore.TransactionsCollection(ledgerID),
			docstore.TemplatesCollection(ledgerID),
		}
		if _, err := tx.Exec(ctx, subQuery, subCollections); err != nil {
			return fmt.Errorf("failed to delete sub-collections of ledger %s: %w", ledgerID, err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to delete abandoned ledger", "ledger_id", ledgerID, "error", err)
		return false, err
	}
	return deleted, nil
}
