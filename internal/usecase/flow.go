package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campuslink/campus-iam/internal/core/domain"
	"github.com/campuslink/campus-iam/internal/core/port"
	"github.com/campuslink/campus-iam/internal/infra/config"
	"github.com/campuslink/campus-iam/internal/infra/logger"
	"github.com/campuslink/campus-iam/internal/infra/security"
	"github.com/campuslink/campus-iam/internal/repository"
)

// challengeFlow bundles the challenge mechanics shared by the login and
// registration controllers: code issuance with notify-then-put ordering,
// the attempt ceiling, and lockout purging.
type challengeFlow struct {
	challenges port.ChallengeStore
	notifier   port.Notifier
	audit      port.AuditSink
	cfg        *config.AppConfig
	logger     *zap.Logger
}

// issueChallenge generates a code, notifies, and only then persists the
// challenge. A notifier failure leaves nothing behind. Putting over an
// existing challenge resets its attempts and TTL.
func (f *challengeFlow) issueChallenge(ctx context.Context, purpose domain.ChallengePurpose, email string, payload map[string]any, ttl time.Duration, now time.Time) (*ChallengeIssuedResult, error) {
	code, err := security.GenerateOTP()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	digest, err := security.HashSecret(code)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}

	expiresAt := now.Add(ttl)

	if err := f.notifier.Send(ctx, email, code, expiresAt); err != nil {
		return nil, fmt.Errorf("send code: %w", err)
	}

	if err := f.challenges.Put(ctx, purpose, email, digest, payload, ttl); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	return &ChallengeIssuedResult{
		Email:     email,
		ExpiresIn: int(ttl.Seconds()),
		ExpiresAt: expiresAt,
	}, nil
}

// loadChallenge maps a missing record to ErrNoPendingChallenge.
func (f *challengeFlow) loadChallenge(ctx context.Context, purpose domain.ChallengePurpose, email string) (*domain.Challenge, error) {
	challenge, err := f.challenges.Get(ctx, purpose, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoPendingChallenge
		}
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	return challenge, nil
}

// checkCode applies the attempt ceiling and constant-time comparison. A
// store failure while incrementing preserves the challenge so the caller
// may retry with the same code.
func (f *challengeFlow) checkCode(ctx context.Context, purpose domain.ChallengePurpose, email, code string, challenge *domain.Challenge, now time.Time) error {
	maxAttempts := int(f.cfg.OTP.MaxAttempts)
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	if challenge.Attempts >= maxAttempts {
		return f.lockOut(ctx, purpose, email, challenge, challenge.Attempts, now)
	}

	match, err := security.VerifySecret(code, challenge.SecretHash)
	if err != nil {
		return fmt.Errorf("verify code: %w", err)
	}
	if match {
		return nil
	}

	attempts, err := f.challenges.IncrementAttempts(ctx, purpose, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoPendingChallenge
		}
		return fmt.Errorf("record attempt: %w", err)
	}

	if attempts >= maxAttempts {
		return f.lockOut(ctx, purpose, email, challenge, attempts, now)
	}

	return ErrInvalidOTP
}

// consumeChallenge deletes the record after a successful comparison. A
// concurrent verify that already consumed it surfaces as no-pending rather
// than a second success.
func (f *challengeFlow) consumeChallenge(ctx context.Context, purpose domain.ChallengePurpose, email string) error {
	if err := f.challenges.Delete(ctx, purpose, email); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoPendingChallenge
		}
		return fmt.Errorf("consume challenge: %w", err)
	}
	return nil
}

// lockOut purges the challenge and journals the attempt count that crossed
// the ceiling, which is the post-increment value on the triggering guess.
func (f *challengeFlow) lockOut(ctx context.Context, purpose domain.ChallengePurpose, email string, challenge *domain.Challenge, attempts int, now time.Time) error {
	if err := f.challenges.Delete(ctx, purpose, email); err != nil && !errors.Is(err, repository.ErrNotFound) {
		f.logger.Warn("challenge purge on lockout failed",
			zap.String("purpose", string(purpose)),
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
	}

	action := domain.AuditLoginLockedOut
	if purpose == domain.ChallengeRegistration {
		action = domain.AuditRegisterLocked
	}

	event := domain.AuditEvent{
		Action:     action,
		EntityType: "challenge",
		EntityID:   string(purpose) + ":" + logger.MaskEmail(email),
		Metadata: map[string]any{
			"email":    logger.MaskEmail(email),
			"attempts": attempts,
		},
		Timestamp: now,
	}
	if id, ok := challenge.Payload[payloadAccountID].(string); ok {
		event.ActorID = id
	}

	f.audit.Record(ctx, event)

	return ErrTooManyAttempts
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if val, ok := payload[key].(string); ok {
		return val
	}
	return ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
