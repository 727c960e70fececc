package docstore

import (
	"context"
	"errors"
	"sync"

	"github.com/household-ledger/internal/domain/shared"
)

// Hub fans document changes out to subscribers. Each subscriber has a small
// buffer; when it is full the oldest pending snapshot is dropped so a slow
// reader always ends up with the latest state.
type Hub struct {
	mu     sync.Mutex
	next   uint64
	subs   map[uint64]*subscriber
	buffer int
	closed bool
}

type subscriber struct {
	target   Target
	ch       chan Snapshot
	versions map[string]int64
}

// NewHub creates a hub whose subscriber channels hold buffer snapshots.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{subs: make(map[uint64]*subscriber), buffer: buffer}
}

// Subscribe registers target. The subscription ends when ctx is done or Close is called.
// The returned id addresses the new subscriber in Send.
func (h *Hub) Subscribe(ctx context.Context, target Target) (uint64, *Subscription) {
	h.mu.Lock()
	h.next++
	id := h.next
	sub := &subscriber{
		target:   target,
		ch:       make(chan Snapshot, h.buffer),
		versions: make(map[string]int64),
	}
	if h.closed {
		close(sub.ch)
	} else {
		h.subs[id] = sub
	}
	h.mu.Unlock()

	done := make(chan struct{})
	s := &Subscription{C: sub.ch}
	s.release = func() {
		close(done)
		h.remove(id)
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()
	return id, s
}

// Publish delivers snap to every subscriber whose target matches it.
func (h *Hub) Publish(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.target.Matches(snap.Collection, snap.ID) {
			sub.deliver(snap)
		}
	}
}

// Send delivers snap to a single subscriber, typically its initial state.
func (h *Hub) Send(id uint64, snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		sub.deliver(snap)
	}
}

// Interested reports whether any subscriber watches collection/id.
func (h *Hub) Interested(collection, id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.target.Matches(collection, id) {
			return true
		}
	}
	return false
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		close(sub.ch)
		delete(h.subs, id)
	}
}

// deliver must be called with the hub lock held.
func (s *subscriber) deliver(snap Snapshot) {
	if snap.Document != nil && !snap.Deleted {
		// Skip versions already seen; the same change can arrive both from the
		// writing process and from the database notification.
		if last, ok := s.versions[snap.ID]; ok && snap.Document.Version <= last {
			return
		}
		s.versions[snap.ID] = snap.Document.Version
	}
	if snap.Deleted {
		delete(s.versions, snap.ID)
	}

	select {
	case s.ch <- snap:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- snap:
	default:
	}
}

// Prime sends the current state of target, read from p, to subscriber id: the
// document or a deletion for a single-document target, every document for a
// collection target.
func (h *Hub) Prime(ctx context.Context, p Port, id uint64, target Target) error {
	if target.ID != "" {
		doc, err := p.Get(ctx, target.Collection, target.ID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			h.Send(id, Snapshot{Collection: target.Collection, ID: target.ID, Deleted: true})
		case err != nil:
			h.Send(id, Snapshot{Collection: target.Collection, ID: target.ID, Err: err})
		default:
			h.Send(id, Snapshot{Collection: target.Collection, ID: target.ID, Document: doc})
		}
		return nil
	}

	docs, err := p.List(ctx, target.Collection)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		h.Send(id, Snapshot{Collection: doc.Collection, ID: doc.ID, Document: doc})
	}
	return nil
}
