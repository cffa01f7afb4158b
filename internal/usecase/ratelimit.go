package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campuslink/campus-iam/internal/core/port"
)

// Rate limiter scopes. Request and resend limits are shared by the login and
// registration flows; verification shares one counter as well.
const (
	loginRequestScope = "login_request"
	otpVerifyScope    = "otp_verify"
	otpResendScope    = "otp_resend"
)

// rateLimiter enforces per-client-address sliding windows. Store failures
// degrade open: the limiter logs and admits the request, leaving the
// challenge store's attempt ceiling as the backstop.
type rateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
}

func newRateLimiter(store port.RateLimitStore, logger *zap.Logger) *rateLimiter {
	return &rateLimiter{store: store, logger: logger}
}

func (l *rateLimiter) enforce(ctx context.Context, scope, clientIP string, limit int64, window time.Duration, now time.Time) error {
	if l == nil || l.store == nil || limit <= 0 {
		return nil
	}

	key := strings.TrimSpace(clientIP)
	if key == "" {
		return nil
	}

	if window <= 0 {
		window = 15 * time.Minute
	}

	storageKey := fmt.Sprintf("%s:%s", scope, key)

	if err := l.store.TrimWindow(ctx, storageKey, window, now); err != nil {
		l.logger.Warn("rate limit trim failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	count, err := l.store.CountAttempts(ctx, storageKey, window, now)
	if err != nil {
		l.logger.Warn("rate limit count failed", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	if int64(count) >= limit {
		retryAfter := time.Duration(0)
		if oldest, ok, err := l.store.OldestAttempt(ctx, storageKey, window, now); err == nil && ok {
			reset := oldest.Add(window)
			if reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if err != nil {
			l.logger.Warn("rate limit oldest lookup failed", zap.String("scope", scope), zap.Error(err))
		}
		return &RateLimitExceededError{Scope: scope, RetryAfter: retryAfter}
	}

	if err := l.store.RecordAttempt(ctx, storageKey, now); err != nil {
		l.logger.Warn("rate limit record failed", zap.String("scope", scope), zap.Error(err))
	}

	return nil
}
