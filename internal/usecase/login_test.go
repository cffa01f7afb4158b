package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campuslink/campus-iam/internal/core/domain"
	"github.com/campuslink/campus-iam/internal/infra/security"
)

type loginFixture struct {
	service    *LoginService
	accounts   *accountRepoMock
	challenges *challengeStoreMock
	notifier   *notifierMock
	audit      *auditSinkMock
	tokens     *tokenMinterMock
}

func newLoginFixture(t *testing.T) *loginFixture {
	t.Helper()

	accounts := newAccountRepoMock()
	challenges := newChallengeStoreMock()
	notifier := &notifierMock{}
	audit := &auditSinkMock{}
	tokens := &tokenMinterMock{}

	service := NewLoginService(accounts, challenges, noopRateLimitStore{}, notifier, audit, tokens, testConfig(), testLogger())

	return &loginFixture{
		service:    service,
		accounts:   accounts,
		challenges: challenges,
		notifier:   notifier,
		audit:      audit,
		tokens:     tokens,
	}
}

func (f *loginFixture) seedAccount(t *testing.T, email, password string) *domain.Account {
	t.Helper()

	hash, err := security.HashSecret(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	account := &domain.Account{
		ID:           "acc-1",
		Username:     "priya",
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleStudent,
	}
	f.accounts.accounts[email] = account
	return account
}

func (f *loginFixture) seedChallenge(t *testing.T, email, code string, attempts int) {
	t.Helper()

	digest, err := security.HashSecret(code)
	if err != nil {
		t.Fatalf("hash code: %v", err)
	}

	now := time.Now().UTC()
	f.challenges.records[challengeKey(domain.ChallengeLogin, email)] = &domain.Challenge{
		Purpose:    domain.ChallengeLogin,
		Email:      email,
		SecretHash: digest,
		Attempts:   attempts,
		Payload: map[string]any{
			payloadAccountID: "acc-1",
			payloadUsername:  "priya",
			payloadRole:      string(domain.RoleStudent),
			payloadEmail:     email,
		},
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
	}
}

func TestLoginRequestOTPIssuesChallenge(t *testing.T) {
	f := newLoginFixture(t)
	f.seedAccount(t, "priya@campus.edu", "s3cret-pass")

	result, err := f.service.RequestOTP(context.Background(), LoginRequestInput{
		Email:    "  Priya@Campus.EDU ",
		Password: "s3cret-pass",
		ClientIP: "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if result.Email != "priya@campus.edu" {
		t.Fatalf("expected normalized email, got %s", result.Email)
	}
	if result.ExpiresIn != 600 {
		t.Fatalf("expected 600s ttl, got %d", result.ExpiresIn)
	}

	record, ok := f.challenges.records[challengeKey(domain.ChallengeLogin, "priya@campus.edu")]
	if !ok {
		t.Fatalf("expected stored challenge")
	}
	if record.Payload[payloadAccountID] != "acc-1" {
		t.Fatalf("expected staged account id, got %v", record.Payload[payloadAccountID])
	}

	if len(f.notifier.codes) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.codes))
	}

	match, err := security.VerifySecret(f.notifier.lastCode(), record.SecretHash)
	if err != nil || !match {
		t.Fatalf("stored hash does not match delivered code (match=%v err=%v)", match, err)
	}
}

func TestLoginRequestOTPGenericError(t *testing.T) {
	f := newLoginFixture(t)
	f.seedAccount(t, "priya@campus.edu", "s3cret-pass")

	_, unknownErr := f.service.RequestOTP(context.Background(), LoginRequestInput{
		Email:    "ghost@campus.edu",
		Password: "whatever-pass",
	})
	_, wrongErr := f.service.RequestOTP(context.Background(), LoginRequestInput{
		Email:    "priya@campus.edu",
		Password: "wrong-pass",
	})

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", unknownErr)
	}
	if !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("errors must be indistinguishable: %q vs %q", unknownErr, wrongErr)
	}
}

func TestLoginRequestOTPNotifierFailureLeavesNothing(t *testing.T) {
	f := newLoginFixture(t)
	f.seedAccount(t, "priya@campus.edu", "s3cret-pass")
	f.notifier.err = errors.New("smtp down")

	if _, err := f.service.RequestOTP(context.Background(), LoginRequestInput{
		Email:    "priya@campus.edu",
		Password: "s3cret-pass",
	}); err == nil {
		t.Fatalf("expected notifier failure to surface")
	}

	if len(f.challenges.records) != 0 {
		t.Fatalf("expected no challenge after notifier failure")
	}
}

func TestLoginVerifyOTPSuccess(t *testing.T) {
	f := newLoginFixture(t)
	f.seedChallenge(t, "priya@campus.edu", "482913", 0)

	result, err := f.service.VerifyOTP(context.Background(), LoginVerifyInput{
		Email: "priya@campus.edu",
		Code:  "482913",
	})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	if result.Token != "token-acc-1" {
		t.Fatalf("expected minted token, got %s", result.Token)
	}
	if result.User.Username != "priya" || result.User.Role != domain.RoleStudent {
		t.Fatalf("unexpected account summary: %+v", result.User)
	}

	if len(f.challenges.records) != 0 {
		t.Fatalf("expected challenge consumed")
	}
	if f.audit.lastAction() != domain.AuditLoginSucceeded {
		t.Fatalf("expected login audit event, got %q", f.audit.lastAction())
	}
}

func TestLoginVerifyOTPSecondUseFindsNothing(t *testing.T) {
	f := newLoginFixture(t)
	f.seedChallenge(t, "priya@campus.edu", "482913", 0)

	if _, err := f.service.VerifyOTP(context.Background(), LoginVerifyInput{
		Email: "priya@campus.edu",
		Code:  "482913",
	}); err != nil {
		t.Fatalf("first verify failed: %v", err)
	}

	if _, err := f.service.VerifyOTP(context.Background(), LoginVerifyInput{
		Email: "priya@campus.edu",
		Code:  "482913",
	}); !errors.Is(err, ErrNoPendingChallenge) {
		t.Fatalf("expected ErrNoPendingChallenge on replay, got %v", err)
	}
}

func TestLoginVerifyOTPWrongCodeConsumesAttempt(t *testing.T) {
	f := newLoginFixture(t)
	f.seedChallenge(t, "priya@campus.edu", "482913", 0)

	if _, err := f.service.VerifyOTP(context.Background(), LoginVerifyInput{
		Email: "priya@campus.edu",
		Code:  "000000",
	}); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}

	record := f.challenges.records[challengeKey(domain.ChallengeLogin, "priya@campus.edu")]
	if record == nil || record.Attempts != 1 {
		t.Fatalf("expected one consumed attempt, got %+v", record)
	}
}

func TestLoginVerifyOTPLockoutOnFifthWrongCode(t *testing.T) {
	f := newLoginFixture(t)
	f.seedChallenge(t, "priya@campus.edu", "482913", 4)

	if _, err := f.service.VerifyOTP(context.Background(), LoginVerifyInput{
		Email: "priya@campus.edu",
		Code:  "000000",
	}); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}

	if len(f.challenges.records) != 0 {
		t.Fatalf("expected challenge purged on lockout")
	}
	if f.audit.lastAction() != domain.AuditLoginLockedOut {
		t.Fatalf("expected lockout audit event, got %q", f.audit.lastAction())
	}
	event := f.audit.events[len(f.audit.events)-1]
	if got := event.Metadata["attempts"]; got != 5 {
		t.Fatalf("expected lockout journaled with 5 attempts, got %v", got)
	}
}

func TestLoginVerifyOTPCorrectCodeAfterLockoutRejected(t *testing.T) {
	f := newLoginFixture(t)
	f.seedChallenge(t, "priya@campus.edu", "482913", 5)

	if _, err := f.service.VerifyOTP(context.Background(), LoginVerifyInput{
		Email: "priya@campus.edu",
		Code:  "482913",
	}); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts even with the right code, got %v", err)
	}

	if len(f.tokens.issued) != 0 {
		t.Fatalf("no token may be minted after lockout")
	}
}

func TestLoginVerifyOTPIncrementFailurePreservesChallenge(t *testing.T) {
	f := newLoginFixture(t)
	f.seedChallenge(t, "priya@campus.edu", "482913", 2)
	f.challenges.incErr = errors.New("redis down")

	if _, err := f.service.VerifyOTP(context.Background(), LoginVerifyInput{
		Email: "priya@campus.edu",
		Code:  "000000",
	}); err == nil || errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}

	record := f.challenges.records[challengeKey(domain.ChallengeLogin, "priya@campus.edu")]
	if record == nil || record.Attempts != 2 {
		t.Fatalf("expected challenge preserved with attempts intact, got %+v", record)
	}
}

func TestLoginVerifyOTPNoChallenge(t *testing.T) {
	f := newLoginFixture(t)

	if _, err := f.service.VerifyOTP(context.Background(), LoginVerifyInput{
		Email: "priya@campus.edu",
		Code:  "482913",
	}); !errors.Is(err, ErrNoPendingChallenge) {
		t.Fatalf("expected ErrNoPendingChallenge, got %v", err)
	}
}

func TestLoginResendOTPResetsAttemptsAndTTL(t *testing.T) {
	f := newLoginFixture(t)
	f.seedChallenge(t, "priya@campus.edu", "482913", 3)

	result, err := f.service.ResendOTP(context.Background(), LoginResendInput{Email: "priya@campus.edu"})
	if err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	if result.ExpiresIn != 600 {
		t.Fatalf("expected fresh 600s ttl, got %d", result.ExpiresIn)
	}

	record := f.challenges.records[challengeKey(domain.ChallengeLogin, "priya@campus.edu")]
	if record.Attempts != 0 {
		t.Fatalf("expected attempts reset, got %d", record.Attempts)
	}
	if record.Payload[payloadAccountID] != "acc-1" {
		t.Fatalf("expected payload carried over, got %v", record.Payload)
	}

	match, err := security.VerifySecret(f.notifier.lastCode(), record.SecretHash)
	if err != nil || !match {
		t.Fatalf("resend hash does not match delivered code (match=%v err=%v)", match, err)
	}
}

func TestLoginResendOTPWithoutChallenge(t *testing.T) {
	f := newLoginFixture(t)

	if _, err := f.service.ResendOTP(context.Background(), LoginResendInput{Email: "priya@campus.edu"}); !errors.Is(err, ErrNoPendingChallenge) {
		t.Fatalf("expected ErrNoPendingChallenge, got %v", err)
	}
}

func TestLoginRequestOTPRateLimited(t *testing.T) {
	accounts := newAccountRepoMock()
	store := &countingRateLimitStore{count: 5, oldest: time.Now().Add(-5 * time.Minute)}
	service := NewLoginService(accounts, newChallengeStoreMock(), store, &notifierMock{}, &auditSinkMock{}, &tokenMinterMock{}, testConfig(), testLogger())

	_, err := service.RequestOTP(context.Background(), LoginRequestInput{
		Email:    "priya@campus.edu",
		Password: "s3cret-pass",
		ClientIP: "10.0.0.1",
	})

	var rateErr *RateLimitExceededError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitExceededError, got %v", err)
	}
	if rateErr.Scope != loginRequestScope {
		t.Fatalf("expected %s scope, got %s", loginRequestScope, rateErr.Scope)
	}
	if rateErr.RetryAfter <= 0 {
		t.Fatalf("expected retry-after hint, got %s", rateErr.RetryAfter)
	}
}
