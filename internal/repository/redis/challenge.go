package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/campuslink/campus-iam/internal/core/domain"
	"github.com/campuslink/campus-iam/internal/core/port"
	"github.com/campuslink/campus-iam/internal/repository"
)

const (
	defaultChallengePrefix = "campus:otp"

	fieldSecretHash = "code_hash"
	fieldPayload    = "payload"
	fieldAttempts   = "attempts"
	fieldCreatedAt  = "created_at"
	fieldExpiresAt  = "expires_at"
)

// ChallengeStore persists OTP challenges in Redis hashes with a TTL.
// The attempt counter uses HINCRBY, which is atomic and leaves the key's
// remaining TTL untouched.
type ChallengeStore struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewChallengeStore constructs a challenge store with the provided Redis
// client and key prefix.
func NewChallengeStore(client *red.Client, keyPrefix string) *ChallengeStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultChallengePrefix
	}

	return &ChallengeStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// Put stores a challenge, overwriting any existing entry for the same
// (purpose, email) pair. Attempts reset to zero and the TTL restarts.
func (s *ChallengeStore) Put(ctx context.Context, purpose domain.ChallengePurpose, email, secretHash string, payload map[string]any, ttl time.Duration) error {
	key, err := s.key(purpose, email)
	if err != nil {
		return err
	}

	switch {
	case strings.TrimSpace(secretHash) == "":
		return errors.New("secret hash is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal challenge payload: %w", err)
	}

	now := s.now().UTC()
	expiresAt := now.Add(ttl)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		fieldSecretHash: secretHash,
		fieldPayload:    string(encoded),
		fieldAttempts:   "0",
		fieldCreatedAt:  strconv.FormatInt(now.Unix(), 10),
		fieldExpiresAt:  strconv.FormatInt(expiresAt.Unix(), 10),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store challenge: %w", err)
	}

	return nil
}

// Get retrieves the live challenge for (purpose, email).
func (s *ChallengeStore) Get(ctx context.Context, purpose domain.ChallengePurpose, email string) (*domain.Challenge, error) {
	key, err := s.key(purpose, email)
	if err != nil {
		return nil, err
	}

	values, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall challenge: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	secretHash := strings.TrimSpace(values[fieldSecretHash])
	if secretHash == "" {
		return nil, repository.ErrNotFound
	}

	createdAt, err := parseUnix(values[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	expiresAt, err := parseUnix(values[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	attempts := 0
	if raw := values[fieldAttempts]; raw != "" {
		if v, convErr := strconv.Atoi(raw); convErr == nil {
			attempts = v
		}
	}

	var payload map[string]any
	if raw := values[fieldPayload]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("unmarshal challenge payload: %w", err)
		}
	}

	return &domain.Challenge{
		Purpose:    purpose,
		Email:      strings.TrimSpace(email),
		SecretHash: secretHash,
		Attempts:   attempts,
		Payload:    payload,
		CreatedAt:  createdAt,
		ExpiresAt:  expiresAt,
	}, nil
}

// incrementAttemptsScript guards the HINCRBY with the existence check in one
// round trip. A key expiring between a separate EXISTS and HINCRBY would be
// resurrected as an orphan hash with no TTL.
var incrementAttemptsScript = red.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
return redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
`)

// IncrementAttempts bumps the attempt counter and returns the new value.
// The increment does not touch the key's remaining TTL.
func (s *ChallengeStore) IncrementAttempts(ctx context.Context, purpose domain.ChallengePurpose, email string) (int, error) {
	key, err := s.key(purpose, email)
	if err != nil {
		return 0, err
	}

	count, err := incrementAttemptsScript.Run(ctx, s.client, []string{key}, fieldAttempts).Int()
	if err != nil {
		return 0, fmt.Errorf("redis increment challenge attempts: %w", err)
	}
	if count < 0 {
		return 0, repository.ErrNotFound
	}

	return count, nil
}

// Delete removes the challenge, enforcing single-use semantics.
func (s *ChallengeStore) Delete(ctx context.Context, purpose domain.ChallengePurpose, email string) error {
	key, err := s.key(purpose, email)
	if err != nil {
		return err
	}

	deleted, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis delete challenge: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// WithClock overrides the internal clock, used in tests.
func (s *ChallengeStore) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

func (s *ChallengeStore) key(purpose domain.ChallengePurpose, email string) (string, error) {
	email = strings.TrimSpace(email)
	if purpose == "" || email == "" {
		return "", errors.New("purpose and email are required")
	}
	return fmt.Sprintf("%s:%s:%s", s.prefix, purpose, email), nil
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

var _ port.ChallengeStore = (*ChallengeStore)(nil)
