// Package session runs one signed-in user's view of the household ledgers:
// which store the session writes to, the active ledger and its live snapshot,
// and the saved-ledger list.
package session

import (
	"slices"
	"sync"

	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/profile"
)

// Snapshot is an immutable copy of the session state.
type Snapshot struct {
	Version        uint64
	UID            string
	Mode           string
	ActiveLedgerID string
	// Ledger is the latest pushed state of the active ledger, nil until the
	// first event arrives or after the ledger is deleted.
	Ledger       *ledger.Ledger
	SavedLedgers []profile.SavedLedgerEntry
	Categories   []string
}

// State holds the session snapshot and notifies observers on every change.
// Observers only ever see the newest snapshot; intermediate ones may be skipped.
type State struct {
	mu     sync.RWMutex
	snap   Snapshot
	subs   map[int]chan Snapshot
	nextID int
}

func NewState() *State {
	return &State{subs: make(map[int]chan Snapshot)}
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Subscribe returns a channel that receives the current snapshot immediately
// and every later one. The cancel function closes the channel.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Snapshot, 1)
	ch <- s.snap.clone()
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// update applies fn and publishes the result.
func (s *State) update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.snap)
	s.snap.Version++
	for _, ch := range s.subs {
		latest := s.snap.clone()
		select {
		case ch <- latest:
		default:
			// Replace the unread snapshot with the newer one.
			select {
			case <-ch:
			default:
			}
			ch <- latest
		}
	}
}

// closeAll ends every subscription.
func (s *State) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s Snapshot) clone() Snapshot {
	s.SavedLedgers = slices.Clone(s.SavedLedgers)
	s.Categories = slices.Clone(s.Categories)
	return s
}
