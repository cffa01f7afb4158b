package port

import (
	"context"
	"time"
)

// Notifier delivers a one-time code out-of-band. Flows persist a challenge
// only after Send returns nil; a failure means no challenge is left behind.
type Notifier interface {
	Send(ctx context.Context, email, code string, expiresAt time.Time) error
}
