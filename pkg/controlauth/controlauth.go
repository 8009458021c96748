// Package controlauth guards configuration mutations behind a shared-secret
// HMAC scheme. A request carries a Unix timestamp, a caller-chosen nonce and
// a hex signature; verification enforces freshness, rejects nonce replays
// within a TTL window, and compares signatures in constant time.
package controlauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Header names on control-plane requests.
const (
	HeaderTimestamp = "X-Graviton-Timestamp"
	HeaderNonce     = "X-Graviton-Nonce"
	HeaderSignature = "X-Graviton-Signature"
)

// Defaults, overridable via environment.
const (
	DefaultMaxSkew  = 60 * time.Second
	DefaultNonceTTL = 300 * time.Second
)

// Error is an authentication failure with a client-facing reason and the
// HTTP status class it maps to.
type Error struct {
	Status int
	Reason string
}

func (e *Error) Error() string { return e.Reason }

// Distinct failure modes, in verification order.
var (
	ErrNotConfigured = &Error{Status: http.StatusServiceUnavailable, Reason: "control auth is not configured on worker"}
	ErrMissingHeaders = &Error{
		Status: http.StatusUnauthorized,
		Reason: fmt.Sprintf("missing control auth headers, required: %s, %s, %s", HeaderTimestamp, HeaderNonce, HeaderSignature),
	}
	ErrBadTimestamp = &Error{Status: http.StatusUnauthorized, Reason: "invalid timestamp header"}
	ErrStale        = &Error{Status: http.StatusUnauthorized, Reason: "stale timestamp"}
	ErrReplay       = &Error{Status: http.StatusUnauthorized, Reason: "replay detected (nonce reused)"}
	ErrBadSignature = &Error{Status: http.StatusUnauthorized, Reason: "invalid signature"}
)

// Request is the envelope under verification. Body must be the exact raw
// request bytes; any re-serialization breaks the signature.
type Request struct {
	Method    string
	Path      string
	Timestamp string
	Nonce     string
	Signature string
	Body      []byte
}

// Verifier checks control-plane requests against the shared secret. Safe
// for concurrent use; the nonce cache is guarded internally.
type Verifier struct {
	secret   string
	maxSkew  time.Duration
	nonceTTL time.Duration
	nonces   *NonceCache
	now      func() time.Time
}

// Option customises a Verifier.
type Option func(*Verifier)

// WithMaxSkew bounds the accepted clock drift between caller and receiver.
func WithMaxSkew(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.maxSkew = d
		}
	}
}

// WithNonceTTL sets how long a consumed nonce stays in the replay cache.
func WithNonceTTL(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.nonceTTL = d
		}
	}
}

// WithClock overrides wall-clock time, used by tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// New creates a Verifier. An empty secret yields a verifier that rejects
// every request with ErrNotConfigured.
func New(secret string, opts ...Option) *Verifier {
	v := &Verifier{
		secret:   strings.TrimSpace(secret),
		maxSkew:  DefaultMaxSkew,
		nonceTTL: DefaultNonceTTL,
		nonces:   NewNonceCache(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// FromEnv builds a Verifier from GRAVITON_BRIDGE_CONTROL_* environment
// variables. Malformed overrides fall back to the defaults.
func FromEnv() *Verifier {
	opts := []Option{}
	if raw := strings.TrimSpace(os.Getenv("GRAVITON_BRIDGE_CONTROL_MAX_SKEW_SECONDS")); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs >= 1 {
			opts = append(opts, WithMaxSkew(time.Duration(secs)*time.Second))
		}
	}
	if raw := strings.TrimSpace(os.Getenv("GRAVITON_BRIDGE_CONTROL_NONCE_TTL_SECONDS")); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs >= 10 {
			opts = append(opts, WithNonceTTL(time.Duration(secs)*time.Second))
		}
	}
	return New(os.Getenv("GRAVITON_BRIDGE_CONTROL_HMAC_SECRET"), opts...)
}

// Enabled reports whether a shared secret is configured.
func (v *Verifier) Enabled() bool {
	return v.secret != ""
}

// Verify authenticates one request. On success the nonce is consumed and
// cannot be replayed until its TTL elapses.
func (v *Verifier) Verify(req Request) error {
	if !v.Enabled() {
		return ErrNotConfigured
	}

	timestamp := strings.TrimSpace(req.Timestamp)
	nonce := strings.TrimSpace(req.Nonce)
	signature := strings.ToLower(strings.TrimSpace(req.Signature))
	if timestamp == "" || nonce == "" || signature == "" {
		return ErrMissingHeaders
	}

	sentTS, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrBadTimestamp
	}

	now := v.now()
	skew := now.Unix() - sentTS
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > v.maxSkew {
		return ErrStale
	}

	v.nonces.Prune(now)
	if v.nonces.Seen(nonce) {
		return ErrReplay
	}

	expected := Sign(v.secret, req.Method, req.Path, sentTS, nonce, req.Body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}

	v.nonces.Put(nonce, now.Add(v.nonceTTL))
	return nil
}

// Sign computes the lowercase hex HMAC-SHA256 over
// METHOD\nPATH\nTIMESTAMP\nNONCE\nBODY. Exposed so callers and tests can
// produce valid signatures.
func Sign(secret, method, path string, timestamp int64, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.ToUpper(method)))
	mac.Write([]byte("\n"))
	mac.Write([]byte(path))
	mac.Write([]byte("\n"))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("\n"))
	mac.Write([]byte(nonce))
	mac.Write([]byte("\n"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
