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

// Challenge payload keys shared by issuance and verification.
const (
	payloadAccountID = "account_id"
	payloadUsername  = "username"
	payloadRole      = "role"
	payloadEmail     = "email"
)

// TokenMinter mints session tokens for a verified account.
type TokenMinter interface {
	Issue(account domain.Account) (string, error)
	TTL() time.Duration
}

// LoginRequestInput carries the credentials for the first login phase.
type LoginRequestInput struct {
	Email    string
	Password string
	ClientIP string
}

// LoginVerifyInput carries the one-time code for the second login phase.
type LoginVerifyInput struct {
	Email    string
	Code     string
	ClientIP string
}

// LoginResendInput asks for a fresh code on an outstanding challenge.
type LoginResendInput struct {
	Email    string
	ClientIP string
}

// ChallengeIssuedResult reports a successfully issued challenge.
type ChallengeIssuedResult struct {
	Email     string
	ExpiresIn int
	ExpiresAt time.Time
}

// AccountSummary is the caller-facing slice of a verified account.
type AccountSummary struct {
	UserID   string
	Username string
	Email    string
	Role     domain.Role
}

// SessionResult carries the minted token and the account it belongs to.
type SessionResult struct {
	Token string
	User  AccountSummary
}

// LoginService orchestrates the two-phase password-then-OTP login flow.
type LoginService struct {
	flow     challengeFlow
	accounts port.AccountRepository
	tokens   TokenMinter
	limiter  *rateLimiter
	cfg      *config.AppConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewLoginService constructs a LoginService.
func NewLoginService(
	accounts port.AccountRepository,
	challenges port.ChallengeStore,
	rateLimits port.RateLimitStore,
	notifier port.Notifier,
	audit port.AuditSink,
	tokens TokenMinter,
	cfg *config.AppConfig,
	log *zap.Logger,
) *LoginService {
	return &LoginService{
		flow: challengeFlow{
			challenges: challenges,
			notifier:   notifier,
			audit:      audit,
			cfg:        cfg,
			logger:     log,
		},
		accounts: accounts,
		tokens:   tokens,
		limiter:  newRateLimiter(rateLimits, log),
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *LoginService) WithClock(now func() time.Time) *LoginService {
	if now != nil {
		s.now = now
	}
	return s
}

// RequestOTP checks the password and, on success, issues a login challenge.
// Unknown email and wrong password return the same generic error.
func (s *LoginService) RequestOTP(ctx context.Context, input LoginRequestInput) (*ChallengeIssuedResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, &ValidationError{Field: "email", Reason: "is required"}
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, &ValidationError{Field: "password", Reason: "is required"}
	}

	now := s.now().UTC()
	if err := s.limiter.enforce(ctx, loginRequestScope, input.ClientIP, s.cfg.RateLimit.RequestMaxAttempts, s.cfg.RateLimit.RequestWindow, now); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	match, err := security.VerifySecret(input.Password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	payload := map[string]any{
		payloadAccountID: account.ID,
		payloadUsername:  account.Username,
		payloadRole:      string(account.Role),
		payloadEmail:     account.Email,
	}

	return s.flow.issueChallenge(ctx, domain.ChallengeLogin, email, payload, s.cfg.OTP.LoginTTL, now)
}

// VerifyOTP consumes the login challenge and mints a session token.
func (s *LoginService) VerifyOTP(ctx context.Context, input LoginVerifyInput) (*SessionResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, &ValidationError{Field: "email", Reason: "is required"}
	}
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, &ValidationError{Field: "code", Reason: "is required"}
	}

	now := s.now().UTC()
	if err := s.limiter.enforce(ctx, otpVerifyScope, input.ClientIP, s.cfg.RateLimit.VerifyMaxAttempts, s.cfg.RateLimit.VerifyWindow, now); err != nil {
		return nil, err
	}

	challenge, err := s.flow.loadChallenge(ctx, domain.ChallengeLogin, email)
	if err != nil {
		return nil, err
	}

	if err := s.flow.checkCode(ctx, domain.ChallengeLogin, email, code, challenge, now); err != nil {
		return nil, err
	}

	account, err := accountFromPayload(challenge.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode challenge payload: %w", err)
	}

	if err := s.flow.consumeChallenge(ctx, domain.ChallengeLogin, email); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	s.flow.audit.Record(ctx, domain.AuditEvent{
		ActorID:    account.ID,
		ActorRole:  account.Role,
		Action:     domain.AuditLoginSucceeded,
		EntityType: "account",
		EntityID:   account.ID,
		Metadata: map[string]any{
			"email": logger.MaskEmail(account.Email),
		},
		Timestamp: now,
	})

	return &SessionResult{
		Token: token,
		User: AccountSummary{
			UserID:   account.ID,
			Username: account.Username,
			Email:    account.Email,
			Role:     account.Role,
		},
	}, nil
}

// ResendOTP replaces the outstanding login challenge with a fresh code,
// resetting both the attempt counter and the TTL.
func (s *LoginService) ResendOTP(ctx context.Context, input LoginResendInput) (*ChallengeIssuedResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, &ValidationError{Field: "email", Reason: "is required"}
	}

	now := s.now().UTC()
	if err := s.limiter.enforce(ctx, otpResendScope, input.ClientIP, s.cfg.RateLimit.ResendMaxAttempts, s.cfg.RateLimit.ResendWindow, now); err != nil {
		return nil, err
	}

	challenge, err := s.flow.loadChallenge(ctx, domain.ChallengeLogin, email)
	if err != nil {
		return nil, err
	}

	return s.flow.issueChallenge(ctx, domain.ChallengeLogin, email, challenge.Payload, s.cfg.OTP.LoginTTL, now)
}

func accountFromPayload(payload map[string]any) (domain.Account, error) {
	roleRaw := payloadString(payload, payloadRole)
	role, err := domain.ParseRole(roleRaw)
	if err != nil {
		return domain.Account{}, err
	}

	account := domain.Account{
		ID:       payloadString(payload, payloadAccountID),
		Username: payloadString(payload, payloadUsername),
		Email:    payloadString(payload, payloadEmail),
		Role:     role,
	}
	if account.ID == "" {
		return domain.Account{}, fmt.Errorf("payload missing account id")
	}

	return account, nil
}
