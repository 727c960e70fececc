package documents

import (
	"context"
	"log/slog"
	"time"

	"github.com/household-ledger/internal/domain/profile"
	"github.com/household-ledger/internal/platform/docstore"
)

// ProfileRepository implements profile.Repository on users/{uid}.
type ProfileRepository struct {
	port   docstore.Port
	logger *slog.Logger
	now    func() time.Time
}

func NewProfileRepository(logger *slog.Logger, port docstore.Port) *ProfileRepository {
	return &ProfileRepository{port: port, logger: logger, now: time.Now}
}

var _ profile.Repository = (*ProfileRepository)(nil)

func (r *ProfileRepository) Get(ctx context.Context, uid string) (*profile.UserProfile, error) {
	return docstore.GetAs[profile.UserProfile](ctx, r.port, docstore.UsersCollection, uid)
}

// Update applies fn to the profile, starting from an empty one when the user has none.
func (r *ProfileRepository) Update(ctx context.Context, uid string, fn func(p *profile.UserProfile) error) (*profile.UserProfile, error) {
	return docstore.UpdateAs(ctx, r.port, docstore.UsersCollection, uid, func(current *profile.UserProfile) (*profile.UserProfile, error) {
		if current == nil {
			current = profile.New(uid, r.now())
		}
		if current.SavedLedgers == nil {
			current.SavedLedgers = []profile.SavedLedgerEntry{}
		}
		if err := fn(current); err != nil {
			return nil, err
		}
		return current, nil
	})
}
