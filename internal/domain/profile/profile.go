// Package profile holds the per-user saved-ledger index.
package profile

import (
	"slices"
	"time"
)

// SavedLedgerEntry is a user-private pointer to a ledger the user belongs to.
type SavedLedgerEntry struct {
	ID             string    `json:"id"`
	Alias          string    `json:"alias"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
}

// UserProfile is owned by a single user and shared only across that user's devices.
type UserProfile struct {
	UID          string             `json:"uid"`
	DisplayName  string             `json:"displayName,omitempty"`
	Email        string             `json:"email,omitempty"`
	PhotoURL     string             `json:"photoURL,omitempty"`
	LastLedgerID string             `json:"lastLedgerId,omitempty"`
	SavedLedgers []SavedLedgerEntry `json:"savedLedgers"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// New returns an empty profile for uid.
func New(uid string, now time.Time) *UserProfile {
	return &UserProfile{
		UID:          uid,
		SavedLedgers: []SavedLedgerEntry{},
		CreatedAt:    now.UTC(),
	}
}

// Find returns the saved entry for ledgerID.
func (p *UserProfile) Find(ledgerID string) (SavedLedgerEntry, bool) {
	if i := p.index(ledgerID); i >= 0 {
		return p.SavedLedgers[i], true
	}
	return SavedLedgerEntry{}, false
}

// Upsert replaces any entry for the same ledger with entry, appended last.
func (p *UserProfile) Upsert(entry SavedLedgerEntry) {
	p.Remove(entry.ID)
	p.SavedLedgers = append(p.SavedLedgers, entry)
}

// EnsureEntry adds an entry for ledgerID only when none exists. It reports whether one was added.
func (p *UserProfile) EnsureEntry(ledgerID, alias string, now time.Time) bool {
	if p.index(ledgerID) >= 0 {
		return false
	}
	p.SavedLedgers = append(p.SavedLedgers, SavedLedgerEntry{ID: ledgerID, Alias: alias, LastAccessedAt: now.UTC()})
	return true
}

// Remove drops the entry for ledgerID and clears LastLedgerID when it pointed there.
func (p *UserProfile) Remove(ledgerID string) bool {
	i := p.index(ledgerID)
	if p.LastLedgerID == ledgerID && i >= 0 {
		p.LastLedgerID = ""
	}
	if i < 0 {
		return false
	}
	p.SavedLedgers = slices.Delete(slices.Clone(p.SavedLedgers), i, i+1)
	return true
}

// Activate marks ledgerID as the active ledger and refreshes its access time.
func (p *UserProfile) Activate(ledgerID string, now time.Time) {
	p.LastLedgerID = ledgerID
	if i := p.index(ledgerID); i >= 0 {
		p.SavedLedgers[i].LastAccessedAt = now.UTC()
	}
}

// Rename changes the alias of a saved entry. It reports whether the entry exists.
func (p *UserProfile) Rename(ledgerID, alias string) bool {
	i := p.index(ledgerID)
	if i < 0 {
		return false
	}
	p.SavedLedgers[i].Alias = alias
	return true
}

// Replacement returns the saved entry that should become active after the current one
// goes away: the first remaining entry in list order.
func (p *UserProfile) Replacement() (SavedLedgerEntry, bool) {
	if len(p.SavedLedgers) == 0 {
		return SavedLedgerEntry{}, false
	}
	return p.SavedLedgers[0], true
}

func (p *UserProfile) index(ledgerID string) int {
	return slices.IndexFunc(p.SavedLedgers, func(e SavedLedgerEntry) bool { return e.ID == ledgerID })
}
