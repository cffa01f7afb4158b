package security

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

const otpDigits = 6

// GenerateOTP returns a 6-digit numeric code drawn uniformly from
// [0, 1000000) using the crypto source. Rejection sampling avoids the
// modulo bias a naive reduction would introduce.
func GenerateOTP() (string, error) {
	const bound = 1000000
	// Largest multiple of bound that fits in a uint32.
	const limit = (1 << 32) / bound * bound

	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		v := binary.BigEndian.Uint32(buf[:])
		if uint64(v) < uint64(limit) {
			return fmt.Sprintf("%0*d", otpDigits, v%bound), nil
		}
	}
}
