package ledger

import (
	"context"
	"sync"
	"time"
)

// Repository manages ledger documents. Update applies fn to a freshly read
// snapshot inside the store's atomic read-modify-write primitive.
type Repository interface {
	Get(ctx context.Context, id string) (*Ledger, error)
	Create(ctx context.Context, l *Ledger) error
	Update(ctx context.Context, id string, fn func(l *Ledger) error) (*Ledger, error)
	Watch(ctx context.Context, id string) (*Stream, error)
}

// TransactionRepository stores the transaction log of every ledger.
// Save is an upsert keyed by transaction id so replays are harmless.
type TransactionRepository interface {
	Save(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, ledgerID, id string) (*Transaction, error)
	ListByLedger(ctx context.Context, ledgerID string, includeDeleted bool) ([]*Transaction, error)
	SoftDelete(ctx context.Context, ledgerID, id string, at time.Time) error
	DeleteByLedger(ctx context.Context, ledgerID string) (int64, error)
}

// Event is one snapshot pushed by a ledger watch. Deleted is set once the
// document is gone; Err carries a terminal stream failure.
type Event struct {
	Ledger  *Ledger
	Deleted bool
	Err     error
}

// Stream is a typed subscription to a single ledger document.
type Stream struct {
	C     <-chan Event
	close func()
	once  sync.Once
}

// NewStream wraps a channel and its release function.
func NewStream(c <-chan Event, closeFn func()) *Stream {
	return &Stream{C: c, close: closeFn}
}

// Close releases the subscription. It is safe to call more than once.
func (s *Stream) Close() {
	if s == nil || s.close == nil {
		return
	}
	s.once.Do(s.close)
}
