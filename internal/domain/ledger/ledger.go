package ledger

import (
	"errors"
	"slices"
	"strings"
	"time"
)

var (
	ErrEmptyCategory     = errors.New("category cannot be empty")
	ErrDuplicateCategory = errors.New("category already exists")
	ErrUnknownCategory   = errors.New("category does not exist in ledger")
)

// Member is the denormalized copy of a user stored on a ledger.
type Member struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Ledger is a shared transaction log with a member set and a category set.
type Ledger struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	OwnerUID          string     `json:"ownerUid"`
	Members           []Member   `json:"members"`
	Categories        []string   `json:"categories"`
	CreatedAt         time.Time  `json:"createdAt"`
	ScheduledDeleteAt *time.Time `json:"scheduledDeleteAt,omitempty"`
}

// New creates a ledger owned by owner, who is also its only member.
func New(id, name string, owner Member, categories []string, now time.Time) *Ledger {
	return &Ledger{
		ID:         id,
		Name:       name,
		OwnerUID:   owner.UID,
		Members:    []Member{owner},
		Categories: NormalizeCategories(categories),
		CreatedAt:  now.UTC(),
	}
}

// HasMember reports whether uid belongs to the ledger.
func (l *Ledger) HasMember(uid string) bool {
	return l.memberIndex(uid) >= 0
}

// AddMember adds m unless a member with the same uid is present, in which case the
// cached display fields are refreshed. Any pending deletion is cancelled either way.
// It reports whether a new member was added.
func (l *Ledger) AddMember(m Member) bool {
	l.ScheduledDeleteAt = nil
	if i := l.memberIndex(m.UID); i >= 0 {
		l.Members[i] = m
		return false
	}
	l.Members = append(l.Members, m)
	return true
}

// RemoveMember drops uid from the member set. When the set becomes empty the
// ledger is scheduled for deletion at now+grace. It reports whether uid was a member.
func (l *Ledger) RemoveMember(uid string, now time.Time, grace time.Duration) bool {
	i := l.memberIndex(uid)
	if i < 0 {
		return false
	}
	remaining := make([]Member, 0, len(l.Members)-1)
	remaining = append(remaining, l.Members[:i]...)
	remaining = append(remaining, l.Members[i+1:]...)
	l.Members = remaining

	if len(l.Members) == 0 {
		at := now.Add(grace).UTC()
		l.ScheduledDeleteAt = &at
	}
	return true
}

// Validate checks the structural invariants of a ledger document.
func (l *Ledger) Validate() error {
	if l.ID == "" {
		return errors.New("ledger id cannot be empty")
	}
	if strings.TrimSpace(l.Name) == "" {
		return errors.New("ledger name cannot be empty")
	}
	if len(l.Members) > 0 && l.ScheduledDeleteAt != nil {
		return errors.New("ledger with members cannot be scheduled for deletion")
	}
	return nil
}

// HasCategory reports whether name is in the category set.
func (l *Ledger) HasCategory(name string) bool {
	return slices.Contains(l.Categories, strings.TrimSpace(name))
}

// AddCategory appends a new, unique category.
func (l *Ledger) AddCategory(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyCategory
	}
	if l.HasCategory(name) {
		return ErrDuplicateCategory
	}
	l.Categories = append(l.Categories, name)
	return nil
}

// RemoveCategory deletes a category. Existing transactions keep their label.
func (l *Ledger) RemoveCategory(name string) error {
	name = strings.TrimSpace(name)
	i := slices.Index(l.Categories, name)
	if i < 0 {
		return ErrUnknownCategory
	}
	l.Categories = slices.Delete(slices.Clone(l.Categories), i, i+1)
	return nil
}

func (l *Ledger) memberIndex(uid string) int {
	return slices.IndexFunc(l.Members, func(m Member) bool { return m.UID == uid })
}

// NormalizeCategories trims, drops empties and removes duplicates while keeping order.
func NormalizeCategories(lists ...[]string) []string {
	out := make([]string, 0)
	for _, list := range lists {
		for _, c := range list {
			c = strings.TrimSpace(c)
			if c == "" || slices.Contains(out, c) {
				continue
			}
			out = append(out, c)
		}
	}
	return out
}
