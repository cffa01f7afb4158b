package port

import (
	"context"

	"github.com/campuslink/campus-iam/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts and their
// role profiles.
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// CreateWithProfile inserts the account and exactly one role profile row
	// inside a single transaction. It re-checks email uniqueness before
	// inserting and returns repository.ErrConflict when the email is already
	// taken, leaving no rows behind.
	CreateWithProfile(ctx context.Context, account domain.Account, profile domain.ProfileData) error
}

// DivisionRepository resolves division lookup rows for student profiles.
type DivisionRepository interface {
	GetID(ctx context.Context, department, name string) (string, error)
}
