// Package docstore defines the document persistence port shared by the remote and
// local stores, together with typed helpers and the in-process change hub.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/household-ledger/internal/domain/shared"
)

// Collection names of the logical layout.
const (
	UsersCollection   = "users"
	LedgersCollection = "ledgers"
)

// Store modes reported by Port.Mode.
const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)

// ErrConflict signals a lost race on a write; atomic updates retry on it.
var ErrConflict = errors.New("document write conflict")

// TransactionsCollection is the sub-collection holding a ledger's transactions.
func TransactionsCollection(ledgerID string) string {
	return LedgersCollection + "/" + ledgerID + "/transactions"
}

// TemplatesCollection is the sub-collection holding a ledger's recurring templates.
func TemplatesCollection(ledgerID string) string {
	return LedgersCollection + "/" + ledgerID + "/recurringTemplates"
}

// NotFound builds the error returned when collection/id does not resolve.
func NotFound(collection, id string) error {
	return shared.NotFoundError{Kind: collection, ID: id}
}

// Document is a JSON object stored under collection/id.
type Document struct {
	Collection string
	ID         string
	Data       json.RawMessage
	Version    int64
	UpdatedAt  time.Time
}

// UpdateFunc computes the new content of a document from current, which is nil
// when the document does not exist. Returning nil data leaves the document as is.
// It may run more than once when the store retries on conflict, so it must not
// have side effects outside its return value.
type UpdateFunc func(current *Document) (json.RawMessage, error)

// Target selects what a subscription observes. An empty ID observes every
// document of the collection.
type Target struct {
	Collection string
	ID         string
}

// Matches reports whether a change to collection/id is visible to t.
func (t Target) Matches(collection, id string) bool {
	return t.Collection == collection && (t.ID == "" || t.ID == id)
}

// Snapshot is one element of a subscription stream.
type Snapshot struct {
	Collection string
	ID         string
	Document   *Document
	Deleted    bool
	Err        error
}

// Subscription is a hot stream of snapshots. C is closed after Close or when the
// subscribing context ends.
type Subscription struct {
	C       <-chan Snapshot
	release func()
	once    sync.Once
}

// Close releases every resource held by the subscription.
func (s *Subscription) Close() {
	if s == nil || s.release == nil {
		return
	}
	s.once.Do(s.release)
}

// Port is the storage contract consumed by the membership and recurring components.
type Port interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Set(ctx context.Context, collection, id string, data json.RawMessage, merge bool) error
	RunAtomicUpdate(ctx context.Context, collection, id string, fn UpdateFunc) (*Document, error)
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string) ([]*Document, error)
	Subscribe(ctx context.Context, target Target) (*Subscription, error)
	Mode() string
	Close() error
}
