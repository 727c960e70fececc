package profile

import "context"

// Repository persists user profiles. Update creates the profile when it does not exist yet
// and applies fn against a fresh snapshot inside an atomic update.
type Repository interface {
	Get(ctx context.Context, uid string) (*UserProfile, error)
	Update(ctx context.Context, uid string, fn func(p *UserProfile) error) (*UserProfile, error)
}
