package session

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// OneTimePassword derives the current 6-digit TOTP code (30 s step, SHA1)
// from a base32 secret. A value that already is a 6-digit code is returned
// unchanged.
func OneTimePassword(secret string, at time.Time) (string, error) {
	secret = strings.TrimSpace(secret)
	if isCode(secret) {
		return secret, nil
	}

	secret = strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	return totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

func isCode(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
