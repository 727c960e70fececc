package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/schedule"
	"github.com/household-ledger/internal/domain/shared"
)

const (
	// TransactionCollectionName is the name of the transaction log collection in MongoDB
	TransactionCollectionName = "ledger_transactions"
)

// TransactionRepository implements the ledger.TransactionRepository interface for MongoDB
type TransactionRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewTransactionRepository creates a new MongoDB transaction repository
func NewTransactionRepository(logger *slog.Logger, db *mongo.Database) *TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

var _ ledger.TransactionRepository = (*TransactionRepository)(nil)

// transactionDocument is the stored form of a ledger.Transaction. Amounts are
// kept as Decimal128 and dates as YYYY-MM-DD so they sort lexically.
type transactionDocument struct {
	ID          string               `bson:"_id"`
	LedgerID    string               `bson:"ledger_id"`
	Amount      primitive.Decimal128 `bson:"amount"`
	Type        string               `bson:"type"`
	Category    string               `bson:"category"`
	Description string               `bson:"description"`
	Rewards     primitive.Decimal128 `bson:"rewards"`
	Date        string               `bson:"date"`
	CreatorUID  string               `bson:"creator_uid"`
	TemplateID  string               `bson:"template_id,omitempty"`
	CreatedAt   time.Time            `bson:"created_at"`
	UpdatedAt   *time.Time           `bson:"updated_at,omitempty"`
	Deleted     bool                 `bson:"deleted"`
	DeletedAt   *time.Time           `bson:"deleted_at,omitempty"`
}

func toDocument(tx *ledger.Transaction) (*transactionDocument, error) {
	amount, err := primitive.ParseDecimal128(tx.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("invalid amount %s: %w", tx.Amount, err)
	}
	rewards, err := primitive.ParseDecimal128(tx.Rewards.String())
	if err != nil {
		return nil, fmt.Errorf("invalid rewards %s: %w", tx.Rewards, err)
	}
	return &transactionDocument{
		ID:          tx.ID,
		LedgerID:    tx.LedgerID,
		Amount:      amount,
		Type:        string(tx.Type),
		Category:    tx.Category,
		Description: tx.Description,
		Rewards:     rewards,
		Date:        tx.Date.String(),
		CreatorUID:  tx.CreatorUID,
		TemplateID:  tx.TemplateID,
		CreatedAt:   tx.CreatedAt,
		UpdatedAt:   tx.UpdatedAt,
		Deleted:     tx.Deleted,
		DeletedAt:   tx.DeletedAt,
	}, nil
}

func (d *transactionDocument) toTransaction() (*ledger.Transaction, error) {
	amount, err := decimal.NewFromString(d.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("transaction %s has invalid amount: %w", d.ID, err)
	}
	rewards, err := decimal.NewFromString(d.Rewards.String())
	if err != nil {
		return nil, fmt.Errorf("transaction %s has invalid rewards: %w", d.ID, err)
	}
	date, err := schedule.Parse(d.Date)
	if err != nil {
		return nil, fmt.Errorf("transaction %s has invalid date: %w", d.ID, err)
	}
	return &ledger.Transaction{
		ID:          d.ID,
		LedgerID:    d.LedgerID,
		Amount:      amount,
		Type:        shared.TransactionType(d.Type),
		Category:    d.Category,
		Description: d.Description,
		Rewards:     rewards,
		Date:        date,
		CreatorUID:  d.CreatorUID,
		TemplateID:  d.TemplateID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		Deleted:     d.Deleted,
		DeletedAt:   d.DeletedAt,
	}, nil
}

// EnsureIndexes creates the index backing per-ledger listings.
func (r *TransactionRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(TransactionCollectionName)
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ledger_id", Value: 1}, {Key: "date", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create transaction indexes: %w", err)
	}
	return nil
}

// Save upserts the transaction by id, so replaying a recurring fire is harmless.
func (r *TransactionRepository) Save(ctx context.Context, tx *ledger.Transaction) error {
	collection := r.db.Collection(TransactionCollectionName)

	doc, err := toDocument(tx)
	if err != nil {
		return err
	}

	filter := bson.M{"_id": tx.ID}
	_, err = collection.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		r.logger.Error("Failed to save transaction",
			"transaction_id", tx.ID,
			"ledger_id", tx.LedgerID,
			"error", err)
		return shared.Unavailable("saveTransaction", fmt.Errorf("failed to save transaction: %w", err))
	}

	return nil
}

// Get retrieves a transaction of ledgerID. Returns a NotFoundError if it does not exist.
func (r *TransactionRepository) Get(ctx context.Context, ledgerID, id string) (*ledger.Transaction, error) {
	collection := r.db.Collection(TransactionCollectionName)

	filter := bson.M{"_id": id, "ledger_id": ledgerID}
	var doc transactionDocument
	err := collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, shared.NotFoundError{Kind: "transaction", ID: id}
		}
		r.logger.Error("Failed to get transaction",
			"transaction_id", id,
			"error", err)
		return nil, shared.Unavailable("getTransaction", fmt.Errorf("failed to get transaction: %w", err))
	}

	return doc.toTransaction()
}

// ListByLedger returns the ledger's transactions, newest date first.
func (r *TransactionRepository) ListByLedger(ctx context.Context, ledgerID string, includeDeleted bool) ([]*ledger.Transaction, error) {
	collection := r.db.Collection(TransactionCollectionName)

	filter := bson.M{"ledger_id": ledgerID}
	if !includeDeleted {
		filter["deleted"] = bson.M{"$ne": true}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}, {Key: "created_at", Value: -1}})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list transactions",
			"ledger_id", ledgerID,
			"error", err)
		return nil, shared.Unavailable("listTransactions", fmt.Errorf("failed to list transactions: %w", err))
	}
	defer cursor.Close(ctx)

	var docs []transactionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode transactions",
			"ledger_id", ledgerID,
			"error", err)
		return nil, shared.Unavailable("listTransactions", fmt.Errorf("failed to decode transactions: %w", err))
	}

	txs := make([]*ledger.Transaction, 0, len(docs))
	for i := range docs {
		tx, err := docs[i].toTransaction()
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// SoftDelete flags the transaction as deleted.
// Returns a NotFoundError if the transaction doesn't exist in the ledger.
func (r *TransactionRepository) SoftDelete(ctx context.Context, ledgerID, id string, at time.Time) error {
	collection := r.db.Collection(TransactionCollectionName)

	at = at.UTC()
	filter := bson.M{"_id": id, "ledger_id": ledgerID}
	update := bson.M{
		"$set": bson.M{
			"deleted":    true,
			"deleted_at": at,
			"updated_at": at,
		},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to soft-delete transaction",
			"transaction_id", id,
			"error", err)
		return shared.Unavailable("deleteTransaction", fmt.Errorf("failed to delete transaction: %w", err))
	}

	if result.MatchedCount == 0 {
		return shared.NotFoundError{Kind: "transaction", ID: id}
	}

	return nil
}

// DeleteByLedger removes every transaction of a reaped ledger.
func (r *TransactionRepository) DeleteByLedger(ctx context.Context, ledgerID string) (int64, error) {
	collection := r.db.Collection(TransactionCollectionName)

	result, err := collection.DeleteMany(ctx, bson.M{"ledger_id": ledgerID})
	if err != nil {
		r.logger.Error("Failed to delete ledger transactions",
			"ledger_id", ledgerID,
			"error", err)
		return 0, shared.Unavailable("deleteLedgerTransactions", fmt.Errorf("failed to delete ledger transactions: %w", err))
	}

	return result.DeletedCount, nil
}
