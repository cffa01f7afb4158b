package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/campuslink/campus-iam/internal/core/domain"
	"github.com/campuslink/campus-iam/internal/infra/security"
	"github.com/campuslink/campus-iam/internal/repository"
)

type registrationFixture struct {
	service    *RegistrationService
	accounts   *accountRepoMock
	challenges *challengeStoreMock
	notifier   *notifierMock
	audit      *auditSinkMock
	tokens     *tokenMinterMock
}

func newRegistrationFixture(t *testing.T) *registrationFixture {
	t.Helper()

	accounts := newAccountRepoMock()
	challenges := newChallengeStoreMock()
	notifier := &notifierMock{}
	audit := &auditSinkMock{}
	tokens := &tokenMinterMock{}

	service := NewRegistrationService(accounts, challenges, noopRateLimitStore{}, notifier, audit, tokens, testConfig(), testLogger())

	return &registrationFixture{
		service:    service,
		accounts:   accounts,
		challenges: challenges,
		notifier:   notifier,
		audit:      audit,
		tokens:     tokens,
	}
}

func studentInput() RegistrationInput {
	return RegistrationInput{
		Username:      "arjun.m",
		Email:         "arjun@campus.edu",
		Password:      "long-enough-pass",
		ContactNumber: "9876543210",
		Role:          "student",
		RollNumber:    "CS-2023-042",
		YearOfStudy:   2,
		Division:      "B",
		Department:    "Computer Science",
	}
}

func (f *registrationFixture) stageCandidate(t *testing.T, code string) {
	t.Helper()

	if _, err := f.service.Request(context.Background(), studentInput()); err != nil {
		t.Fatalf("stage candidate: %v", err)
	}

	// Re-key the stored challenge to a known code.
	digest, err := security.HashSecret(code)
	if err != nil {
		t.Fatalf("hash code: %v", err)
	}
	record := f.challenges.records[challengeKey(domain.ChallengeRegistration, "arjun@campus.edu")]
	if record == nil {
		t.Fatalf("expected staged challenge")
	}
	record.SecretHash = digest
}

func TestRegistrationRequestStagesFullCandidate(t *testing.T) {
	f := newRegistrationFixture(t)

	result, err := f.service.Request(context.Background(), studentInput())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if result.ExpiresIn != 300 {
		t.Fatalf("expected 300s ttl, got %d", result.ExpiresIn)
	}

	record := f.challenges.records[challengeKey(domain.ChallengeRegistration, "arjun@campus.edu")]
	if record == nil {
		t.Fatalf("expected staged challenge")
	}
	if record.Payload[payloadPassword] != "long-enough-pass" {
		t.Fatalf("expected plaintext password staged in payload")
	}
	if record.Payload[payloadRollNumber] != "CS-2023-042" {
		t.Fatalf("expected roll number staged, got %v", record.Payload[payloadRollNumber])
	}
	if len(f.notifier.codes) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.codes))
	}
	if len(f.accounts.created) != 0 {
		t.Fatalf("no account may exist before verification")
	}
}

func TestRegistrationRequestRoleConditionalValidation(t *testing.T) {
	f := newRegistrationFixture(t)

	student := studentInput()
	student.RollNumber = ""
	if _, err := f.service.Request(context.Background(), student); err == nil {
		t.Fatalf("expected validation error for student without roll number")
	} else {
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	}

	faculty := RegistrationInput{
		Username:   "prof.rao",
		Email:      "rao@campus.edu",
		Password:   "long-enough-pass",
		Role:       "faculty",
		Department: "Physics",
	}
	if _, err := f.service.Request(context.Background(), faculty); err == nil {
		t.Fatalf("expected validation error for faculty without designation")
	}

	if len(f.challenges.records) != 0 {
		t.Fatalf("validation failures must not stage challenges")
	}
}

func TestRegistrationRequestEmailTaken(t *testing.T) {
	f := newRegistrationFixture(t)
	f.accounts.accounts["arjun@campus.edu"] = &domain.Account{ID: "acc-9", Email: "arjun@campus.edu"}

	if _, err := f.service.Request(context.Background(), studentInput()); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegistrationVerifyCreatesAccountAtomically(t *testing.T) {
	f := newRegistrationFixture(t)
	f.stageCandidate(t, "771204")

	result, err := f.service.Verify(context.Background(), RegistrationVerifyInput{
		Email: "arjun@campus.edu",
		Code:  "771204",
	})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	if len(f.accounts.created) != 1 {
		t.Fatalf("expected one created account, got %d", len(f.accounts.created))
	}

	created := f.accounts.created[0]
	if created.Role != domain.RoleStudent {
		t.Fatalf("expected student role, got %s", created.Role)
	}
	if created.PasswordHash == "" || created.PasswordHash == "long-enough-pass" {
		t.Fatalf("password must be hashed at commit time")
	}
	match, err := security.VerifySecret("long-enough-pass", created.PasswordHash)
	if err != nil || !match {
		t.Fatalf("stored hash must verify the staged password (match=%v err=%v)", match, err)
	}

	profile := f.accounts.profiles[0]
	if profile.RollNumber != "CS-2023-042" || profile.YearOfStudy != 2 || profile.Division != "B" {
		t.Fatalf("unexpected staged profile: %+v", profile)
	}

	if result.Token != "token-"+created.ID {
		t.Fatalf("expected minted token for new account, got %s", result.Token)
	}
	if len(f.challenges.records) != 0 {
		t.Fatalf("expected challenge consumed after commit")
	}
	if f.audit.lastAction() != domain.AuditAccountCreated {
		t.Fatalf("expected account created audit event, got %q", f.audit.lastAction())
	}
}

func TestRegistrationVerifyConflictAtCommit(t *testing.T) {
	f := newRegistrationFixture(t)
	f.stageCandidate(t, "771204")
	f.accounts.createErr = repository.ErrConflict

	if _, err := f.service.Verify(context.Background(), RegistrationVerifyInput{
		Email: "arjun@campus.edu",
		Code:  "771204",
	}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken on commit conflict, got %v", err)
	}

	if len(f.tokens.issued) != 0 {
		t.Fatalf("no token may be minted on conflict")
	}
}

func TestRegistrationVerifyDivisionNotFound(t *testing.T) {
	f := newRegistrationFixture(t)
	f.stageCandidate(t, "771204")
	f.accounts.createErr = repository.ErrDivisionNotFound

	if _, err := f.service.Verify(context.Background(), RegistrationVerifyInput{
		Email: "arjun@campus.edu",
		Code:  "771204",
	}); !errors.Is(err, ErrDivisionNotFound) {
		t.Fatalf("expected ErrDivisionNotFound, got %v", err)
	}
}

func TestRegistrationVerifyInfraFailurePreservesChallenge(t *testing.T) {
	f := newRegistrationFixture(t)
	f.stageCandidate(t, "771204")
	f.accounts.createErr = errors.New("postgres unreachable")

	if _, err := f.service.Verify(context.Background(), RegistrationVerifyInput{
		Email: "arjun@campus.edu",
		Code:  "771204",
	}); err == nil {
		t.Fatalf("expected infrastructure error")
	}

	record := f.challenges.records[challengeKey(domain.ChallengeRegistration, "arjun@campus.edu")]
	if record == nil {
		t.Fatalf("challenge must survive an aborted transaction")
	}
	if record.Attempts != 0 {
		t.Fatalf("aborted transaction must not consume an attempt, got %d", record.Attempts)
	}

	// The same already-confirmed code still works once the store recovers.
	f.accounts.createErr = nil
	if _, err := f.service.Verify(context.Background(), RegistrationVerifyInput{
		Email: "arjun@campus.edu",
		Code:  "771204",
	}); err != nil {
		t.Fatalf("retry with same code failed: %v", err)
	}
}

func TestRegistrationVerifyLockout(t *testing.T) {
	f := newRegistrationFixture(t)
	f.stageCandidate(t, "771204")

	for i := 0; i < 4; i++ {
		if _, err := f.service.Verify(context.Background(), RegistrationVerifyInput{
			Email: "arjun@campus.edu",
			Code:  "000000",
		}); !errors.Is(err, ErrInvalidOTP) {
			t.Fatalf("attempt %d: expected ErrInvalidOTP, got %v", i+1, err)
		}
	}

	if _, err := f.service.Verify(context.Background(), RegistrationVerifyInput{
		Email: "arjun@campus.edu",
		Code:  "000000",
	}); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected lockout on fifth wrong code, got %v", err)
	}

	if len(f.challenges.records) != 0 {
		t.Fatalf("expected challenge purged on lockout")
	}
	if f.audit.lastAction() != domain.AuditRegisterLocked {
		t.Fatalf("expected registration lockout audit event, got %q", f.audit.lastAction())
	}
	if len(f.accounts.created) != 0 {
		t.Fatalf("no account may be created after lockout")
	}
}

func TestRegistrationResendReusesStagedPayload(t *testing.T) {
	f := newRegistrationFixture(t)
	f.stageCandidate(t, "771204")

	result, err := f.service.Resend(context.Background(), RegistrationResendInput{Email: "arjun@campus.edu"})
	if err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	if result.ExpiresIn != 300 {
		t.Fatalf("expected fresh 300s ttl, got %d", result.ExpiresIn)
	}

	record := f.challenges.records[challengeKey(domain.ChallengeRegistration, "arjun@campus.edu")]
	if record.Payload[payloadPassword] != "long-enough-pass" {
		t.Fatalf("expected staged payload reused")
	}
	if record.Attempts != 0 {
		t.Fatalf("expected attempts reset on resend, got %d", record.Attempts)
	}
}

func TestRegistrationResendWithoutChallenge(t *testing.T) {
	f := newRegistrationFixture(t)

	if _, err := f.service.Resend(context.Background(), RegistrationResendInput{Email: "arjun@campus.edu"}); !errors.Is(err, ErrNoPendingChallenge) {
		t.Fatalf("expected ErrNoPendingChallenge, got %v", err)
	}
}

func TestRegistrationPurposeIsolation(t *testing.T) {
	f := newRegistrationFixture(t)
	f.stageCandidate(t, "771204")

	// A registration challenge must never satisfy a login verification key.
	if _, ok := f.challenges.records[challengeKey(domain.ChallengeLogin, "arjun@campus.edu")]; ok {
		t.Fatalf("registration challenge leaked into login purpose")
	}
	if f.challenges.records[challengeKey(domain.ChallengeRegistration, "arjun@campus.edu")] == nil {
		t.Fatalf("expected registration challenge under its own purpose")
	}
}
