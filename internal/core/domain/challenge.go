package domain

import "time"

// ChallengePurpose scopes a challenge to the flow that issued it. A login
// challenge can never satisfy a registration verification and vice versa.
type ChallengePurpose string

const (
	ChallengeLogin        ChallengePurpose = "login"
	ChallengeRegistration ChallengePurpose = "register"
)

// Challenge is the ephemeral record tracking an outstanding one-time code.
// At most one live challenge exists per (purpose, normalized email); it is
// destroyed on success, on exceeding the attempt ceiling, or at ExpiresAt.
type Challenge struct {
	Purpose    ChallengePurpose
	Email      string
	SecretHash string
	Attempts   int
	Payload    map[string]any
	CreatedAt  time.Time
	ExpiresAt  time.Time
}
