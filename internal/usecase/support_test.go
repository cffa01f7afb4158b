package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campuslink/campus-iam/internal/core/domain"
	"github.com/campuslink/campus-iam/internal/infra/config"
	"github.com/campuslink/campus-iam/internal/repository"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{Name: "campus-iam", Env: "test"},
		OTP: config.OTPSettings{
			LoginTTL:        10 * time.Minute,
			RegistrationTTL: 5 * time.Minute,
			MaxAttempts:     5,
		},
		RateLimit: config.RateLimitSettings{
			RequestWindow:      15 * time.Minute,
			RequestMaxAttempts: 5,
			VerifyWindow:       15 * time.Minute,
			VerifyMaxAttempts:  10,
			ResendWindow:       time.Minute,
			ResendMaxAttempts:  3,
		},
	}
}

type accountRepoMock struct {
	accounts  map[string]*domain.Account
	exists    map[string]bool
	created   []domain.Account
	profiles  []domain.ProfileData
	createErr error
}

func newAccountRepoMock() *accountRepoMock {
	return &accountRepoMock{
		accounts: make(map[string]*domain.Account),
		exists:   make(map[string]bool),
	}
}

func (m *accountRepoMock) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	account, ok := m.accounts[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *accountRepoMock) ExistsByEmail(_ context.Context, email string) (bool, error) {
	if _, ok := m.accounts[email]; ok {
		return true, nil
	}
	return m.exists[email], nil
}

func (m *accountRepoMock) CreateWithProfile(_ context.Context, account domain.Account, profile domain.ProfileData) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.accounts[account.Email]; ok {
		return repository.ErrConflict
	}
	stored := account
	m.accounts[account.Email] = &stored
	m.created = append(m.created, account)
	m.profiles = append(m.profiles, profile)
	return nil
}

type challengeStoreMock struct {
	records map[string]*domain.Challenge
	putErr  error
	getErr  error
	incErr  error
	delErr  error
	puts    int
}

func newChallengeStoreMock() *challengeStoreMock {
	return &challengeStoreMock{records: make(map[string]*domain.Challenge)}
}

func challengeKey(purpose domain.ChallengePurpose, email string) string {
	return string(purpose) + ":" + email
}

func (m *challengeStoreMock) Put(_ context.Context, purpose domain.ChallengePurpose, email, secretHash string, payload map[string]any, ttl time.Duration) error {
	if m.putErr != nil {
		return m.putErr
	}
	now := time.Now().UTC()
	m.records[challengeKey(purpose, email)] = &domain.Challenge{
		Purpose:    purpose,
		Email:      email,
		SecretHash: secretHash,
		Attempts:   0,
		Payload:    payload,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	m.puts++
	return nil
}

func (m *challengeStoreMock) Get(_ context.Context, purpose domain.ChallengePurpose, email string) (*domain.Challenge, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	record, ok := m.records[challengeKey(purpose, email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (m *challengeStoreMock) IncrementAttempts(_ context.Context, purpose domain.ChallengePurpose, email string) (int, error) {
	if m.incErr != nil {
		return 0, m.incErr
	}
	record, ok := m.records[challengeKey(purpose, email)]
	if !ok {
		return 0, repository.ErrNotFound
	}
	record.Attempts++
	return record.Attempts, nil
}

func (m *challengeStoreMock) Delete(_ context.Context, purpose domain.ChallengePurpose, email string) error {
	if m.delErr != nil {
		return m.delErr
	}
	key := challengeKey(purpose, email)
	if _, ok := m.records[key]; !ok {
		return repository.ErrNotFound
	}
	delete(m.records, key)
	return nil
}

type noopRateLimitStore struct{}

func (noopRateLimitStore) TrimWindow(context.Context, string, time.Duration, time.Time) error {
	return nil
}

func (noopRateLimitStore) CountAttempts(context.Context, string, time.Duration, time.Time) (int, error) {
	return 0, nil
}

func (noopRateLimitStore) RecordAttempt(context.Context, string, time.Time) error {
	return nil
}

func (noopRateLimitStore) OldestAttempt(context.Context, string, time.Duration, time.Time) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

type countingRateLimitStore struct {
	count  int
	oldest time.Time
}

func (s *countingRateLimitStore) TrimWindow(context.Context, string, time.Duration, time.Time) error {
	return nil
}

func (s *countingRateLimitStore) CountAttempts(context.Context, string, time.Duration, time.Time) (int, error) {
	return s.count, nil
}

func (s *countingRateLimitStore) RecordAttempt(context.Context, string, time.Time) error {
	s.count++
	return nil
}

func (s *countingRateLimitStore) OldestAttempt(context.Context, string, time.Duration, time.Time) (time.Time, bool, error) {
	if s.oldest.IsZero() {
		return time.Time{}, false, nil
	}
	return s.oldest, true, nil
}

type notifierMock struct {
	emails []string
	codes  []string
	err    error
}

func (m *notifierMock) Send(_ context.Context, email, code string, _ time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.emails = append(m.emails, email)
	m.codes = append(m.codes, code)
	return nil
}

func (m *notifierMock) lastCode() string {
	if len(m.codes) == 0 {
		return ""
	}
	return m.codes[len(m.codes)-1]
}

type auditSinkMock struct {
	events []domain.AuditEvent
}

func (m *auditSinkMock) Record(_ context.Context, event domain.AuditEvent) {
	m.events = append(m.events, event)
}

func (m *auditSinkMock) lastAction() string {
	if len(m.events) == 0 {
		return ""
	}
	return m.events[len(m.events)-1].Action
}

type tokenMinterMock struct {
	err    error
	issued []domain.Account
}

func (m *tokenMinterMock) Issue(account domain.Account) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.issued = append(m.issued, account)
	return "token-" + account.ID, nil
}

func (m *tokenMinterMock) TTL() time.Duration {
	return 15 * time.Minute
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
