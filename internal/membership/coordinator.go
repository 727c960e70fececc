// Package membership coordinates ledger membership with the per-user saved
// ledger index: creating, joining, leaving and switching ledgers.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/household-ledger/internal/config"
	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/profile"
	"github.com/household-ledger/internal/domain/shared"
)

// Options holds the names and durations the coordinator applies.
type Options struct {
	DefaultLedgerName string
	JoinedLedgerName  string
	UnnamedLedgerName string
	DeleteGracePeriod time.Duration
	Categories        []string
}

// OptionsFromConfig derives Options from the membership configuration. New
// ledgers get the union of the expense and income category defaults.
func OptionsFromConfig(cfg config.MembershipConfig) Options {
	return Options{
		DefaultLedgerName: cfg.DefaultLedgerName,
		JoinedLedgerName:  cfg.JoinedLedgerName,
		UnnamedLedgerName: cfg.UnnamedLedgerName,
		DeleteGracePeriod: cfg.DeleteGracePeriod,
		Categories:        ledger.NormalizeCategories(cfg.ExpenseCategories, cfg.IncomeCategories),
	}
}

// Coordinator is bound to the repositories of exactly one store.
type Coordinator struct {
	ledgers  ledger.Repository
	profiles profile.Repository
	cache    ActiveLedgerCache
	opts     Options
	mode     string
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewCoordinator(
	logger *slog.Logger,
	ledgers ledger.Repository,
	profiles profile.Repository,
	cache ActiveLedgerCache,
	mode string,
	opts Options,
) *Coordinator {
	if cache == nil {
		cache = noopCache{}
	}
	return &Coordinator{
		ledgers:  ledgers,
		profiles: profiles,
		cache:    cache,
		opts:     opts,
		mode:     mode,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// Mode reports the store strategy this coordinator writes to.
func (c *Coordinator) Mode() string {
	return c.mode
}

// EnsureProfile creates the user's profile on first sight and refreshes the
// cached identity fields otherwise.
func (c *Coordinator) EnsureProfile(ctx context.Context, actor ledger.Member) (*profile.UserProfile, error) {
	return c.profiles.Update(ctx, actor.UID, func(p *profile.UserProfile) error {
		if actor.DisplayName != "" {
			p.DisplayName = actor.DisplayName
		}
		if actor.Email != "" {
			p.Email = actor.Email
		}
		if actor.PhotoURL != "" {
			p.PhotoURL = actor.PhotoURL
		}
		return nil
	})
}

// ResolveActiveLedger returns the ledger the user should see: the profile's last
// ledger, else the device cache, else a freshly created default ledger. A
// candidate must exist and list the user as a member. Saved entries pointing at
// ledgers confirmed gone are dropped along the way.
func (c *Coordinator) ResolveActiveLedger(ctx context.Context, actor ledger.Member) (string, error) {
	p, err := c.profiles.Get(ctx, actor.UID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return "", shared.Unavailable("resolveActiveLedger", err)
	}

	var candidates []string
	if p != nil && p.LastLedgerID != "" {
		candidates = append(candidates, p.LastLedgerID)
	}
	if cached, ok := c.cache.Get(actor.UID); ok && !slices.Contains(candidates, cached) {
		candidates = append(candidates, cached)
	}

	var stale []string
	for _, id := range candidates {
		l, err := c.ledgers.Get(ctx, id)
		if errors.Is(err, shared.ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return "", shared.Unavailable("resolveActiveLedger", err)
		}
		if !l.HasMember(actor.UID) {
			stale = append(stale, id)
			continue
		}

		if needsRepair(p, l.ID, stale) {
			alias := aliasFor(l.Name, c.opts.UnnamedLedgerName)
			now := c.now()
			_, err := c.profiles.Update(ctx, actor.UID, func(p *profile.UserProfile) error {
				for _, s := range stale {
					p.Remove(s)
				}
				p.EnsureEntry(l.ID, alias, now)
				p.Activate(l.ID, now)
				return nil
			})
			if err != nil {
				return "", shared.Unavailable("resolveActiveLedger", err)
			}
			c.logger.Info("Repaired saved ledger entry", "uid", actor.UID, "ledger_id", l.ID, "dropped", len(stale))
		}
		c.cache.Set(actor.UID, l.ID)
		return l.ID, nil
	}

	l, err := c.createLedger(ctx, actor, c.opts.DefaultLedgerName, stale)
	if err != nil {
		return "", shared.Unavailable("resolveActiveLedger", err)
	}
	return l.ID, nil
}

func needsRepair(p *profile.UserProfile, ledgerID string, stale []string) bool {
	if p == nil || len(stale) > 0 || p.LastLedgerID != ledgerID {
		return true
	}
	_, ok := p.Find(ledgerID)
	return !ok
}

// CreateLedger creates a ledger with the actor as owner and only member, then
// records it in the actor's profile as the active ledger. A blank name falls
// back to the default ledger name.
func (c *Coordinator) CreateLedger(ctx context.Context, actor ledger.Member, name string) (*ledger.Ledger, error) {
	return c.createLedger(ctx, actor, name, nil)
}

func (c *Coordinator) createLedger(ctx context.Context, actor ledger.Member, name string, drop []string) (*ledger.Ledger, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = c.opts.DefaultLedgerName
	}
	now := c.now()
	l := ledger.New(c.newID(), name, actor, c.opts.Categories, now)

	if err := c.ledgers.Create(ctx, l); err != nil {
		return nil, err
	}
	// The cache lets a later resolve find the ledger even if the profile write fails.
	c.cache.Set(actor.UID, l.ID)

	_, err := c.profiles.Update(ctx, actor.UID, func(p *profile.UserProfile) error {
		for _, id := range drop {
			p.Remove(id)
		}
		p.Upsert(profile.SavedLedgerEntry{ID: l.ID, Alias: name, LastAccessedAt: now.UTC()})
		p.Activate(l.ID, now)
		return nil
	})
	if err != nil {
		c.logger.Error("Ledger created but profile update failed", "uid", actor.UID, "ledger_id", l.ID, "error", err)
		return nil, fmt.Errorf("ledger %s created but not saved to profile: %w", l.ID, err)
	}

	c.logger.Info("Ledger created", "uid", actor.UID, "ledger_id", l.ID)
	return l, nil
}

// JoinLedger adds the actor to ledgerID and makes it the active ledger. It
// returns false when the ledger does not exist. Joining again is harmless and
// cancels any pending deletion.
func (c *Coordinator) JoinLedger(ctx context.Context, actor ledger.Member, ledgerID string) (bool, error) {
	l, err := c.ledgers.Update(ctx, ledgerID, func(l *ledger.Ledger) error {
		l.AddMember(actor)
		return nil
	})
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.cache.Set(actor.UID, l.ID)

	alias := aliasFor(l.Name, c.opts.JoinedLedgerName)
	now := c.now()
	_, err = c.profiles.Update(ctx, actor.UID, func(p *profile.UserProfile) error {
		p.Upsert(profile.SavedLedgerEntry{ID: l.ID, Alias: alias, LastAccessedAt: now.UTC()})
		p.Activate(l.ID, now)
		return nil
	})
	if err != nil {
		c.logger.Error("Joined ledger but profile update failed", "uid", actor.UID, "ledger_id", l.ID, "error", err)
		return false, err
	}

	c.logger.Info("Ledger joined", "uid", actor.UID, "ledger_id", l.ID, "members", len(l.Members))
	return true, nil
}

// LeaveLedger removes the actor from ledgerID and returns the ledger that is
// active afterwards. The last member leaving schedules the ledger for deletion
// after the grace period. When the left ledger was active the first remaining
// saved ledger takes over, or a new default ledger is created.
func (c *Coordinator) LeaveLedger(ctx context.Context, actor ledger.Member, ledgerID string) (string, error) {
	now := c.now()
	_, err := c.ledgers.Update(ctx, ledgerID, func(l *ledger.Ledger) error {
		if !l.RemoveMember(actor.UID, now, c.opts.DeleteGracePeriod) {
			return shared.InvariantViolationError{
				Op:     "leaveLedger",
				Reason: fmt.Sprintf("user %s is not a member of ledger %s", actor.UID, ledgerID),
			}
		}
		return nil
	})
	switch {
	case errors.Is(err, shared.ErrNotFound):
		c.logger.Warn("Leaving a ledger that no longer exists", "uid", actor.UID, "ledger_id", ledgerID)
	case errors.Is(err, shared.ErrInvariantViolation):
		c.logger.Error("Invariant violation", "op", "leaveLedger", "uid", actor.UID, "ledger_id", ledgerID, "error", err)
		return "", err
	case err != nil:
		return "", err
	}

	var active string
	_, err = c.profiles.Update(ctx, actor.UID, func(p *profile.UserProfile) error {
		p.Remove(ledgerID)
		if p.LastLedgerID == ledgerID {
			p.LastLedgerID = ""
		}
		active = p.LastLedgerID
		if active == "" {
			if next, ok := p.Replacement(); ok {
				p.Activate(next.ID, now)
				active = next.ID
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if active == "" {
		c.cache.Delete(actor.UID)
		l, err := c.createLedger(ctx, actor, c.opts.DefaultLedgerName, nil)
		if err != nil {
			return "", err
		}
		active = l.ID
	} else {
		c.cache.Set(actor.UID, active)
	}

	c.logger.Info("Ledger left", "uid", actor.UID, "ledger_id", ledgerID, "active_ledger_id", active)
	return active, nil
}

// SwitchLedger makes ledgerID the active ledger. The device cache is updated
// first; a profile write that fails for lack of persistence is logged and
// tolerated because the cache already holds the choice.
func (c *Coordinator) SwitchLedger(ctx context.Context, actor ledger.Member, ledgerID string) error {
	c.cache.Set(actor.UID, ledgerID)
	now := c.now()
	_, err := c.profiles.Update(ctx, actor.UID, func(p *profile.UserProfile) error {
		p.Activate(ledgerID, now)
		return nil
	})
	if errors.Is(err, shared.ErrPersistenceUnavailable) {
		c.logger.Warn("Active ledger kept in cache only", "uid", actor.UID, "ledger_id", ledgerID, "error", err)
		return nil
	}
	return err
}

// UpdateLedgerAlias renames the actor's private entry for ledgerID. The shared
// ledger name is not touched.
func (c *Coordinator) UpdateLedgerAlias(ctx context.Context, actor ledger.Member, ledgerID, alias string) error {
	alias = aliasFor(alias, c.opts.UnnamedLedgerName)
	_, err := c.profiles.Update(ctx, actor.UID, func(p *profile.UserProfile) error {
		if !p.Rename(ledgerID, alias) {
			return shared.NotFoundError{Kind: "saved ledger", ID: ledgerID}
		}
		return nil
	})
	return err
}

// ListSavedLedgers returns the actor's saved entries in list order.
func (c *Coordinator) ListSavedLedgers(ctx context.Context, uid string) ([]profile.SavedLedgerEntry, error) {
	p, err := c.profiles.Get(ctx, uid)
	if errors.Is(err, shared.ErrNotFound) {
		return []profile.SavedLedgerEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return p.SavedLedgers, nil
}

// GetLedger reads a ledger the actor belongs to.
func (c *Coordinator) GetLedger(ctx context.Context, actor ledger.Member, ledgerID string) (*ledger.Ledger, error) {
	l, err := c.ledgers.Get(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	if !l.HasMember(actor.UID) {
		return nil, shared.UnauthorizedError{UID: actor.UID, LedgerID: ledgerID}
	}
	return l, nil
}

// AddCategory adds a category to a ledger the actor belongs to.
func (c *Coordinator) AddCategory(ctx context.Context, actor ledger.Member, ledgerID, category string) (*ledger.Ledger, error) {
	return c.updateAsMember(ctx, actor, ledgerID, func(l *ledger.Ledger) error {
		return l.AddCategory(category)
	})
}

// RemoveCategory removes a category from a ledger the actor belongs to.
func (c *Coordinator) RemoveCategory(ctx context.Context, actor ledger.Member, ledgerID, category string) (*ledger.Ledger, error) {
	return c.updateAsMember(ctx, actor, ledgerID, func(l *ledger.Ledger) error {
		return l.RemoveCategory(category)
	})
}

func (c *Coordinator) updateAsMember(ctx context.Context, actor ledger.Member, ledgerID string, fn func(l *ledger.Ledger) error) (*ledger.Ledger, error) {
	return c.ledgers.Update(ctx, ledgerID, func(l *ledger.Ledger) error {
		if !l.HasMember(actor.UID) {
			return shared.UnauthorizedError{UID: actor.UID, LedgerID: ledgerID}
		}
		return fn(l)
	})
}

func aliasFor(name, fallback string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return fallback
}
