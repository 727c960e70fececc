package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/household-ledger/internal/config"
	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/profile"
	"github.com/household-ledger/internal/domain/shared"
	"github.com/household-ledger/internal/membership"
	"github.com/household-ledger/internal/store"
	"github.com/panjf2000/ants/v2"
)

var ErrNotLoggedIn = errors.New("no user is logged in")

// StoreOpener opens the stores for a mode (remote or local).
type StoreOpener func(ctx context.Context, mode string) (*store.Stores, error)

// Manager owns the session of one user. The store mode is chosen once at login:
// remote when reachable, otherwise local for the rest of the session.
type Manager struct {
	open             StoreOpener
	opts             membership.Options
	cache            membership.ActiveLedgerCache
	logger           *slog.Logger
	reconciler       *ants.Pool
	reconcileTimeout time.Duration
	state            *State

	mu        sync.Mutex
	actor     ledger.Member
	stores    *store.Stores
	coord     *membership.Coordinator
	watch     *ledger.Stream
	watchDone chan struct{}
}

func NewManager(logger *slog.Logger, cfg config.MembershipConfig, open StoreOpener) (*Manager, error) {
	pool, err := ants.NewPool(max(cfg.ReconcileWorkers, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler pool: %w", err)
	}
	timeout := cfg.ReconcileTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		open:             open,
		opts:             membership.OptionsFromConfig(cfg),
		cache:            membership.NewMemoryCache(),
		logger:           logger,
		reconciler:       pool,
		reconcileTimeout: timeout,
		state:            NewState(),
	}, nil
}

// State exposes the observable session state.
func (m *Manager) State() *State {
	return m.state
}

// Coordinator returns the coordinator bound to the session's store.
func (m *Manager) Coordinator() (*membership.Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.coord == nil {
		return nil, ErrNotLoggedIn
	}
	return m.coord, nil
}

// Stores returns the session's stores.
func (m *Manager) Stores() (*store.Stores, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stores == nil {
		return nil, ErrNotLoggedIn
	}
	return m.stores, nil
}

// Actor returns the signed-in user.
func (m *Manager) Actor() ledger.Member {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.actor
}

// Login binds the session to a store, ensures the user's profile and resolves
// the active ledger. When the remote store cannot be reached, or fails with
// PersistenceUnavailable while resolving, the session uses the local store.
func (m *Manager) Login(ctx context.Context, actor ledger.Member) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stores != nil {
		m.stopWatchLocked()
		if err := m.stores.Close(ctx); err != nil {
			m.logger.Warn("Failed to close previous session store", "error", err)
		}
		m.stores, m.coord = nil, nil
	}

	activeID, err := m.bind(ctx, actor, config.StoreModeRemote)
	if errors.Is(err, shared.ErrPersistenceUnavailable) {
		m.logger.Warn("Remote store unavailable, continuing in local mode", "uid", actor.UID, "error", err)
		activeID, err = m.bind(ctx, actor, config.StoreModeLocal)
	}
	if err != nil {
		return "", err
	}

	m.actor = actor
	saved, err := m.coord.ListSavedLedgers(ctx, actor.UID)
	if err != nil {
		m.logger.Warn("Failed to load saved ledgers", "uid", actor.UID, "error", err)
	}
	mode := m.coord.Mode()
	m.state.update(func(s *Snapshot) {
		*s = Snapshot{
			Version:        s.Version,
			UID:            actor.UID,
			Mode:           mode,
			ActiveLedgerID: activeID,
			SavedLedgers:   saved,
		}
	})
	m.startWatchLocked(activeID)

	m.logger.Info("Session started", "uid", actor.UID, "mode", mode, "active_ledger_id", activeID)
	return activeID, nil
}

func (m *Manager) bind(ctx context.Context, actor ledger.Member, mode string) (string, error) {
	stores, err := m.open(ctx, mode)
	if err != nil {
		return "", err
	}
	coord := membership.NewCoordinator(m.logger.With("component", "coordinator"), stores.Ledgers, stores.Profiles, m.cache, mode, m.opts)

	if _, err := coord.EnsureProfile(ctx, actor); err != nil {
		_ = stores.Close(ctx)
		return "", err
	}
	activeID, err := coord.ResolveActiveLedger(ctx, actor)
	if err != nil {
		_ = stores.Close(ctx)
		return "", err
	}
	m.stores, m.coord = stores, coord
	return activeID, nil
}

// Logout stops the ledger watch, releases the store and clears the state.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopWatchLocked()
	var err error
	if m.stores != nil {
		err = m.stores.Close(ctx)
	}
	m.stores, m.coord, m.actor = nil, nil, ledger.Member{}
	m.state.update(func(s *Snapshot) { *s = Snapshot{Version: s.Version} })
	return err
}

// Close logs out, waits for queued reconciliations and ends every state subscription.
func (m *Manager) Close(ctx context.Context) error {
	err := m.Logout(ctx)
	if rerr := m.reconciler.ReleaseTimeout(m.reconcileTimeout); rerr != nil {
		m.logger.Warn("Reconciler did not drain in time", "error", rerr)
	}
	m.state.closeAll()
	return err
}

// Switch makes ledgerID the active ledger and moves the watch onto it.
func (m *Manager) Switch(ctx context.Context, ledgerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.coord == nil {
		return ErrNotLoggedIn
	}
	if err := m.coord.SwitchLedger(ctx, m.actor, ledgerID); err != nil {
		return err
	}
	m.activateLocked(ledgerID)
	return nil
}

// Create makes a new ledger and activates it.
func (m *Manager) Create(ctx context.Context, name string) (*ledger.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.coord == nil {
		return nil, ErrNotLoggedIn
	}
	l, err := m.coord.CreateLedger(ctx, m.actor, name)
	if err != nil {
		return nil, err
	}
	m.refreshSavedLocked(ctx)
	m.activateLocked(l.ID)
	return l, nil
}

// Join adds the user to ledgerID and activates it. An unknown ledger yields false.
func (m *Manager) Join(ctx context.Context, ledgerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.coord == nil {
		return false, ErrNotLoggedIn
	}
	ok, err := m.coord.JoinLedger(ctx, m.actor, ledgerID)
	if err != nil || !ok {
		return ok, err
	}
	m.refreshSavedLocked(ctx)
	m.activateLocked(ledgerID)
	return true, nil
}

// Rename changes the user's private alias for ledgerID.
func (m *Manager) Rename(ctx context.Context, ledgerID, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.coord == nil {
		return ErrNotLoggedIn
	}
	if err := m.coord.UpdateLedgerAlias(ctx, m.actor, ledgerID, alias); err != nil {
		return err
	}
	m.refreshSavedLocked(ctx)
	return nil
}

// Pending is the remote half of a leave. ReplacementID is the ledger the
// session switched to optimistically; it is empty when a new default ledger
// has to be created by the store.
type Pending struct {
	ReplacementID string

	done     chan struct{}
	activeID string
	err      error
}

// Wait blocks until the leave has been applied to the store and returns the
// active ledger chosen there.
func (p *Pending) Wait(ctx context.Context) (string, error) {
	select {
	case <-p.done:
		return p.activeID, p.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *Pending) finish(activeID string, err error) {
	p.activeID, p.err = activeID, err
	close(p.done)
}

// Leave removes ledgerID from the session immediately and applies the leave
// to the store in the background. On failure the session is re-synced from
// the store, which restores the entry when the user is still a member.
func (m *Manager) Leave(ctx context.Context, ledgerID string) *Pending {
	p := &Pending{done: make(chan struct{})}

	m.mu.Lock()
	coord, actor := m.coord, m.actor
	if coord == nil {
		m.mu.Unlock()
		p.finish("", ErrNotLoggedIn)
		return p
	}

	snap := m.state.Snapshot()
	saved := slices.DeleteFunc(snap.SavedLedgers, func(e profile.SavedLedgerEntry) bool { return e.ID == ledgerID })
	replacement := snap.ActiveLedgerID
	if replacement == ledgerID {
		replacement = ""
		if len(saved) > 0 {
			replacement = saved[0].ID
		}
	}
	p.ReplacementID = replacement
	m.state.update(func(s *Snapshot) { s.SavedLedgers = saved })
	if replacement != snap.ActiveLedgerID {
		m.activateLocked(replacement)
	}
	m.mu.Unlock()

	err := m.reconciler.Submit(func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.reconcileTimeout)
		defer cancel()

		activeID, err := coord.LeaveLedger(rctx, actor, ledgerID)
		if err != nil {
			m.logger.Error("Failed to leave ledger, re-syncing session", "uid", actor.UID, "ledger_id", ledgerID, "error", err)
		}
		m.resync(rctx, coord)
		p.finish(activeID, err)
	})
	if err != nil {
		m.logger.Error("Failed to queue leave", "ledger_id", ledgerID, "error", err)
		m.resync(ctx, coord)
		p.finish("", err)
	}
	return p
}

// resync reloads the saved ledgers and the active ledger from the store, as
// long as the session is still bound to coord.
func (m *Manager) resync(ctx context.Context, coord *membership.Coordinator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.coord != coord {
		return
	}
	activeID, err := coord.ResolveActiveLedger(ctx, m.actor)
	if err != nil {
		m.logger.Error("Failed to re-sync session", "uid", m.actor.UID, "error", err)
		return
	}
	m.refreshSavedLocked(ctx)
	m.activateLocked(activeID)
}

func (m *Manager) refreshSavedLocked(ctx context.Context) {
	saved, err := m.coord.ListSavedLedgers(ctx, m.actor.UID)
	if err != nil {
		m.logger.Warn("Failed to refresh saved ledgers", "uid", m.actor.UID, "error", err)
		return
	}
	m.state.update(func(s *Snapshot) { s.SavedLedgers = saved })
}

// activateLocked points the state and the watch at ledgerID.
func (m *Manager) activateLocked(ledgerID string) {
	if m.watch != nil && m.state.Snapshot().ActiveLedgerID == ledgerID {
		return
	}
	m.stopWatchLocked()
	m.state.update(func(s *Snapshot) {
		s.ActiveLedgerID = ledgerID
		s.Ledger = nil
		s.Categories = nil
	})
	m.startWatchLocked(ledgerID)
}

func (m *Manager) startWatchLocked(ledgerID string) {
	if ledgerID == "" || m.stores == nil {
		return
	}
	stream, err := m.stores.Ledgers.Watch(context.Background(), ledgerID)
	if err != nil {
		m.logger.Error("Failed to watch active ledger", "ledger_id", ledgerID, "error", err)
		return
	}
	done := make(chan struct{})
	m.watch, m.watchDone = stream, done

	go func() {
		defer close(done)
		for ev := range stream.C {
			if ev.Err != nil {
				m.logger.Warn("Ledger watch error", "ledger_id", ledgerID, "error", ev.Err)
				continue
			}
			m.state.update(func(s *Snapshot) {
				if s.ActiveLedgerID != ledgerID {
					return
				}
				if ev.Deleted {
					s.Ledger, s.Categories = nil, nil
					return
				}
				s.Ledger = ev.Ledger
				s.Categories = ev.Ledger.Categories
			})
		}
	}()
}

func (m *Manager) stopWatchLocked() {
	if m.watch == nil {
		return
	}
	m.watch.Close()
	<-m.watchDone
	m.watch, m.watchDone = nil, nil
}
