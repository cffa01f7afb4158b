package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuslink/campus-iam/internal/core/domain"
	"github.com/campuslink/campus-iam/internal/core/port"
	"github.com/campuslink/campus-iam/internal/infra/config"
	"github.com/campuslink/campus-iam/internal/infra/logger"
	"github.com/campuslink/campus-iam/internal/infra/security"
	"github.com/campuslink/campus-iam/internal/repository"
)

// Payload keys for the staged registration candidate. The plaintext password
// travels only inside the challenge record and is hashed at commit time.
const (
	payloadPassword    = "password"
	payloadContact     = "contact_number"
	payloadRollNumber  = "roll_number"
	payloadYearOfStudy = "year_of_study"
	payloadDivision    = "division"
	payloadDepartment  = "department"
	payloadDesignation = "designation"
)

// RegistrationInput is the full candidate record submitted in the first
// registration phase. Role-specific fields are validated conditionally.
type RegistrationInput struct {
	Username      string `validate:"required,min=3,max=64"`
	Email         string `validate:"required,email"`
	Password      string `validate:"required,min=8,max=72"`
	ContactNumber string `validate:"omitempty,min=7,max=20"`
	Role          string `validate:"required,oneof=student faculty admin"`
	RollNumber    string
	YearOfStudy   int
	Division      string
	Department    string
	Designation   string
	ClientIP      string `validate:"-"`
}

// RegistrationVerifyInput carries the one-time code for the commit phase.
type RegistrationVerifyInput struct {
	Email    string
	Code     string
	ClientIP string
}

// RegistrationResendInput asks for a fresh code on a staged registration.
type RegistrationResendInput struct {
	Email    string
	ClientIP string
}

// RegistrationService orchestrates the two-phase registration flow: stage a
// full candidate record behind an OTP challenge, then commit it atomically
// once the email is proven.
type RegistrationService struct {
	flow     challengeFlow
	accounts port.AccountRepository
	tokens   TokenMinter
	limiter  *rateLimiter
	validate *validator.Validate
	cfg      *config.AppConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(
	accounts port.AccountRepository,
	challenges port.ChallengeStore,
	rateLimits port.RateLimitStore,
	notifier port.Notifier,
	audit port.AuditSink,
	tokens TokenMinter,
	cfg *config.AppConfig,
	log *zap.Logger,
) *RegistrationService {
	return &RegistrationService{
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
		validate: validator.New(),
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	if now != nil {
		s.now = now
	}
	return s
}

// Request validates the candidate record, rejects already-registered emails,
// and stages the full record behind a registration challenge.
func (s *RegistrationService) Request(ctx context.Context, input RegistrationInput) (*ChallengeIssuedResult, error) {
	input.Email = normalizeEmail(input.Email)
	input.Username = strings.TrimSpace(input.Username)

	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.limiter.enforce(ctx, loginRequestScope, input.ClientIP, s.cfg.RateLimit.RequestMaxAttempts, s.cfg.RateLimit.RequestWindow, now); err != nil {
		return nil, err
	}

	exists, err := s.accounts.ExistsByEmail(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	payload := map[string]any{
		payloadUsername:    input.Username,
		payloadEmail:       input.Email,
		payloadPassword:    input.Password,
		payloadContact:     strings.TrimSpace(input.ContactNumber),
		payloadRole:        input.Role,
		payloadRollNumber:  strings.TrimSpace(input.RollNumber),
		payloadYearOfStudy: input.YearOfStudy,
		payloadDivision:    strings.TrimSpace(input.Division),
		payloadDepartment:  strings.TrimSpace(input.Department),
		payloadDesignation: strings.TrimSpace(input.Designation),
	}

	return s.flow.issueChallenge(ctx, domain.ChallengeRegistration, input.Email, payload, s.cfg.OTP.RegistrationTTL, now)
}

// Verify consumes the registration challenge, commits the staged candidate
// in one transaction, and mints a session token for immediate use.
func (s *RegistrationService) Verify(ctx context.Context, input RegistrationVerifyInput) (*SessionResult, error) {
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

	challenge, err := s.flow.loadChallenge(ctx, domain.ChallengeRegistration, email)
	if err != nil {
		return nil, err
	}

	if err := s.flow.checkCode(ctx, domain.ChallengeRegistration, email, code, challenge, now); err != nil {
		return nil, err
	}

	account, profile, err := candidateFromPayload(challenge.Payload, now)
	if err != nil {
		return nil, fmt.Errorf("decode staged candidate: %w", err)
	}

	// The staged password is hashed only now, at commit time.
	passwordHash, err := security.HashSecret(payloadString(challenge.Payload, payloadPassword))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	account.PasswordHash = passwordHash

	// A store failure here aborts the transaction without consuming an
	// attempt and without deleting the challenge, so the caller may retry
	// the same already-confirmed code.
	if err := s.accounts.CreateWithProfile(ctx, account, profile); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrEmailTaken
		case errors.Is(err, repository.ErrDivisionNotFound):
			return nil, ErrDivisionNotFound
		default:
			return nil, fmt.Errorf("create account: %w", err)
		}
	}

	if err := s.flow.challenges.Delete(ctx, domain.ChallengeRegistration, email); err != nil && !errors.Is(err, repository.ErrNotFound) {
		// The account exists; a stale challenge only ages out via TTL.
		s.logger.Warn("challenge cleanup after commit failed",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
	}

	s.flow.audit.Record(ctx, domain.AuditEvent{
		ActorID:    account.ID,
		ActorRole:  account.Role,
		Action:     domain.AuditAccountCreated,
		EntityType: "account",
		EntityID:   account.ID,
		Metadata: map[string]any{
			"email": logger.MaskEmail(account.Email),
			"role":  string(account.Role),
		},
		Timestamp: now,
	})

	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

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

// Resend replaces the outstanding registration challenge with a fresh code,
// reusing the staged candidate payload.
func (s *RegistrationService) Resend(ctx context.Context, input RegistrationResendInput) (*ChallengeIssuedResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, &ValidationError{Field: "email", Reason: "is required"}
	}

	now := s.now().UTC()
	if err := s.limiter.enforce(ctx, otpResendScope, input.ClientIP, s.cfg.RateLimit.ResendMaxAttempts, s.cfg.RateLimit.ResendWindow, now); err != nil {
		return nil, err
	}

	challenge, err := s.flow.loadChallenge(ctx, domain.ChallengeRegistration, email)
	if err != nil {
		return nil, err
	}

	return s.flow.issueChallenge(ctx, domain.ChallengeRegistration, email, challenge.Payload, s.cfg.OTP.RegistrationTTL, now)
}

// validateInput runs the struct rules plus the role-conditional ones:
// students must name roll number, year of study, division, and department;
// faculty and admins must name a designation.
func (s *RegistrationService) validateInput(input RegistrationInput) error {
	if err := s.validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return &ValidationError{Field: strings.ToLower(first.Field()), Reason: "failed " + first.Tag() + " rule"}
		}
		return &ValidationError{Reason: err.Error()}
	}

	role, err := domain.ParseRole(input.Role)
	if err != nil {
		return &ValidationError{Field: "role", Reason: "must be student, faculty, or admin"}
	}

	switch role {
	case domain.RoleStudent:
		if strings.TrimSpace(input.RollNumber) == "" {
			return &ValidationError{Field: "roll_number", Reason: "is required for students"}
		}
		if input.YearOfStudy <= 0 {
			return &ValidationError{Field: "year_of_study", Reason: "is required for students"}
		}
		if strings.TrimSpace(input.Division) == "" {
			return &ValidationError{Field: "division", Reason: "is required for students"}
		}
		if strings.TrimSpace(input.Department) == "" {
			return &ValidationError{Field: "department", Reason: "is required for students"}
		}
	case domain.RoleFaculty:
		if strings.TrimSpace(input.Department) == "" {
			return &ValidationError{Field: "department", Reason: "is required for faculty"}
		}
		if strings.TrimSpace(input.Designation) == "" {
			return &ValidationError{Field: "designation", Reason: "is required for faculty"}
		}
	case domain.RoleAdmin:
		if strings.TrimSpace(input.Designation) == "" {
			return &ValidationError{Field: "designation", Reason: "is required for admins"}
		}
	}

	return nil
}

// candidateFromPayload rebuilds the staged account and profile. The account
// id is minted here, once, at commit time.
func candidateFromPayload(payload map[string]any, now time.Time) (domain.Account, domain.ProfileData, error) {
	role, err := domain.ParseRole(payloadString(payload, payloadRole))
	if err != nil {
		return domain.Account{}, domain.ProfileData{}, err
	}

	email := payloadString(payload, payloadEmail)
	username := payloadString(payload, payloadUsername)
	if email == "" || username == "" {
		return domain.Account{}, domain.ProfileData{}, fmt.Errorf("payload missing identity fields")
	}

	account := domain.Account{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         email,
		Role:          role,
		ContactNumber: payloadString(payload, payloadContact),
		CreatedAt:     now,
	}

	profile := domain.ProfileData{
		RollNumber:  payloadString(payload, payloadRollNumber),
		YearOfStudy: payloadInt(payload, payloadYearOfStudy),
		Division:    payloadString(payload, payloadDivision),
		Department:  payloadString(payload, payloadDepartment),
		Designation: payloadString(payload, payloadDesignation),
	}

	return account, profile, nil
}

// payloadInt tolerates the numeric widening a JSON round trip applies to
// staged integers.
func payloadInt(payload map[string]any, key string) int {
	if payload == nil {
		return 0
	}
	switch val := payload[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case string:
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
