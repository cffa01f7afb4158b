package port

import (
	"context"
	"time"

	"github.com/campuslink/campus-iam/internal/core/domain"
)

// ChallengeStore persists ephemeral OTP challenges shared across instances.
// All operations fail closed: a store error means no challenge is issued and
// no verification succeeds.
type ChallengeStore interface {
	// Put overwrites any existing challenge for (purpose, email), resetting
	// the attempt counter to zero and restarting the TTL.
	Put(ctx context.Context, purpose domain.ChallengePurpose, email, secretHash string, payload map[string]any, ttl time.Duration) error
	// Get returns repository.ErrNotFound when no live challenge exists.
	Get(ctx context.Context, purpose domain.ChallengePurpose, email string) (*domain.Challenge, error)
	// IncrementAttempts atomically bumps the attempt counter, preserving the
	// remaining TTL, and returns the new count.
	IncrementAttempts(ctx context.Context, purpose domain.ChallengePurpose, email string) (int, error)
	Delete(ctx context.Context, purpose domain.ChallengePurpose, email string) error
}
