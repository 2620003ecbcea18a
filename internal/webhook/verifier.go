// Package webhook authenticates and decodes the mail provider's callbacks.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

var (
	ErrNotConfigured = errors.New("webhook signing key is not configured")
	ErrMissingFields = errors.New("webhook signature fields are missing")
	ErrBadTimestamp  = errors.New("webhook timestamp is invalid")
	ErrStale         = errors.New("webhook timestamp is outside the accepted window")
	ErrBadSignature  = errors.New("webhook signature mismatch")
)

// TokenLedger remembers the outcome of each handled callback by token.
type TokenLedger interface {
	RecordToken(ctx context.Context, token, result string, ttl time.Duration) error
	TokenResult(ctx context.Context, token string) (string, bool, error)
}

// Verifier checks hex(HMAC-SHA256(key, timestamp+token)) signatures.
type Verifier struct {
	key    []byte
	maxAge time.Duration
	ledger TokenLedger
	now    func() time.Time
}

// NewVerifier returns a verifier. An empty key rejects every request, and a
// nil ledger disables token bookkeeping.
func NewVerifier(key string, maxAge time.Duration, ledger TokenLedger) *Verifier {
	if maxAge <= 0 {
		maxAge = 15 * time.Minute
	}
	return &Verifier{key: []byte(key), maxAge: maxAge, ledger: ledger, now: time.Now}
}

// Sign computes the signature the provider sends along with timestamp and
// token.
func Sign(key, timestamp, token string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify authenticates one callback. timestamp is in Unix seconds.
func (v *Verifier) Verify(timestamp, token, signature string) error {
	if len(v.key) == 0 {
		return ErrNotConfigured
	}
	if timestamp == "" || token == "" || signature == "" {
		return ErrMissingFields
	}

	secs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrBadTimestamp
	}
	age := v.now().Sub(time.Unix(secs, 0))
	if age > v.maxAge || age < -v.maxAge {
		return ErrStale
	}

	want, err := hex.DecodeString(Sign(string(v.key), timestamp, token))
	if err != nil {
		return err
	}
	got, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(want, got) {
		return ErrBadSignature
	}

	return nil
}

// Handled returns the result recorded for a token whose callback was
// already processed. A redelivery is answered from it, so a replayed token
// never reaches the processor with a substituted body.
func (v *Verifier) Handled(ctx context.Context, token string) (string, bool, error) {
	if v.ledger == nil {
		return "", false, nil
	}
	return v.ledger.TokenResult(ctx, token)
}

// Record stores the result of a successfully processed callback. Tokens of
// failed attempts stay unrecorded so the provider's retry is processed.
func (v *Verifier) Record(ctx context.Context, token, result string) error {
	if v.ledger == nil {
		return nil
	}
	return v.ledger.RecordToken(ctx, token, result, 2*v.maxAge)
}
