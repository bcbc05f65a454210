package api

import (
	"net/http"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const otpHeader = "X-OTP"

// TOTPGuard checks the X-OTP header against a shared TOTP secret.
// A guard without a secret allows everything.
type TOTPGuard struct {
	secret string
	now    func() time.Time
}

// NewTOTPGuard creates a guard for the given base32 secret.
func NewTOTPGuard(secret string) *TOTPGuard {
	return &TOTPGuard{secret: secret, now: time.Now}
}

// Enabled reports whether a secret is configured.
func (g *TOTPGuard) Enabled() bool { return g.secret != "" }

// Allow reports whether the request carries a currently valid code.
func (g *TOTPGuard) Allow(r *http.Request) bool {
	if !g.Enabled() {
		return true
	}
	code := r.Header.Get(otpHeader)
	if code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, g.secret, g.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
