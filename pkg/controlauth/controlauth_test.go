package controlauth

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

const testSecret = "unit-test-secret"

func signedRequest(secret string, ts int64, nonce string, body []byte) Request {
	return Request{
		Method:    "POST",
		Path:      "/graviton-bridge/config",
		Timestamp: strconv.FormatInt(ts, 10),
		Nonce:     nonce,
		Signature: Sign(secret, "POST", "/graviton-bridge/config", ts, nonce, body),
		Body:      body,
	}
}

func fixedVerifier(secret string, now time.Time, opts ...Option) *Verifier {
	opts = append(opts, WithClock(func() time.Time { return now }))
	return New(secret, opts...)
}

func TestVerifyAcceptsValidRequest(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	v := fixedVerifier(testSecret, now)
	req := signedRequest(testSecret, now.Unix(), "nonce-1", []byte(`{"mode":"s3"}`))
	if err := v.Verify(req); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyUnconfiguredSecret(t *testing.T) {
	v := fixedVerifier("", time.Unix(1_760_000_000, 0))
	err := v.Verify(signedRequest(testSecret, 1_760_000_000, "n", nil))
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestVerifyMissingHeaders(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	v := fixedVerifier(testSecret, now)

	req := signedRequest(testSecret, now.Unix(), "nonce-2", nil)
	req.Nonce = ""
	if err := v.Verify(req); !errors.Is(err, ErrMissingHeaders) {
		t.Fatalf("expected ErrMissingHeaders, got %v", err)
	}
}

func TestVerifyBadTimestamp(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	v := fixedVerifier(testSecret, now)
	req := signedRequest(testSecret, now.Unix(), "nonce-3", nil)
	req.Timestamp = "not-a-number"
	if err := v.Verify(req); !errors.Is(err, ErrBadTimestamp) {
		t.Fatalf("expected ErrBadTimestamp, got %v", err)
	}
}

func TestVerifyStaleTimestampBeforeSignature(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	v := fixedVerifier(testSecret, now, WithMaxSkew(60*time.Second))

	// Correctly signed but 120s old: must fail as stale, not bad signature.
	ts := now.Unix() - 120
	req := signedRequest(testSecret, ts, "nonce-4", []byte("body"))
	if err := v.Verify(req); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestVerifyFutureSkewRejected(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	v := fixedVerifier(testSecret, now, WithMaxSkew(60*time.Second))
	req := signedRequest(testSecret, now.Unix()+120, "nonce-5", nil)
	if err := v.Verify(req); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale for future timestamp, got %v", err)
	}
}

func TestVerifyReplayRejected(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	v := fixedVerifier(testSecret, now)
	body := []byte(`{"mode":"local"}`)

	req := signedRequest(testSecret, now.Unix(), "nonce-6", body)
	if err := v.Verify(req); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if err := v.Verify(req); !errors.Is(err, ErrReplay) {
		t.Fatalf("expected ErrReplay, got %v", err)
	}

	// A fresh nonce with the same timestamp is fine.
	again := signedRequest(testSecret, now.Unix(), "nonce-7", body)
	if err := v.Verify(again); err != nil {
		t.Fatalf("fresh nonce rejected: %v", err)
	}
}

func TestVerifyNonceExpiresAfterTTL(t *testing.T) {
	base := time.Unix(1_760_000_000, 0)
	current := base
	v := New(testSecret,
		WithNonceTTL(300*time.Second),
		WithMaxSkew(24*time.Hour),
		WithClock(func() time.Time { return current }),
	)

	if err := v.Verify(signedRequest(testSecret, base.Unix(), "nonce-8", nil)); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// After the TTL the cache is pruned and the nonce may be reused.
	current = base.Add(301 * time.Second)
	if err := v.Verify(signedRequest(testSecret, current.Unix(), "nonce-8", nil)); err != nil {
		t.Fatalf("expected nonce reuse after TTL, got %v", err)
	}
}

func TestVerifySignatureSensitivity(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	body := []byte(`{"mode":"s3"}`)
	valid := signedRequest(testSecret, now.Unix(), "nonce-9", body)

	mutations := map[string]func(Request) Request{
		"body": func(r Request) Request {
			mutated := append([]byte(nil), r.Body...)
			mutated[0] ^= 0x01
			r.Body = mutated
			return r
		},
		"path":   func(r Request) Request { r.Path = "/graviton-bridge/config2"; return r },
		"method": func(r Request) Request { r.Method = "PUT"; return r },
		"timestamp": func(r Request) Request {
			r.Timestamp = strconv.FormatInt(now.Unix()+1, 10)
			return r
		},
		"nonce": func(r Request) Request { r.Nonce = "nonce-9x"; return r },
	}
	for name, mutate := range mutations {
		v := fixedVerifier(testSecret, now)
		if err := v.Verify(mutate(valid)); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("%s mutation: expected ErrBadSignature, got %v", name, err)
		}
	}

	// Unmutated request still verifies with a fresh verifier.
	v := fixedVerifier(testSecret, now)
	if err := v.Verify(valid); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestVerifyAcceptsUppercaseSignatureHeader(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	v := fixedVerifier(testSecret, now)
	req := signedRequest(testSecret, now.Unix(), "nonce-10", nil)
	req.Signature = "  " + req.Signature + "  "
	if err := v.Verify(req); err != nil {
		t.Fatalf("whitespace-padded signature rejected: %v", err)
	}
}

func TestNonceCachePrune(t *testing.T) {
	c := NewNonceCache()
	now := time.Unix(1_760_000_000, 0)
	c.Put("a", now.Add(10*time.Second))
	c.Put("b", now.Add(-10*time.Second))
	c.Prune(now)
	if !c.Seen("a") {
		t.Fatalf("live nonce pruned")
	}
	if c.Seen("b") {
		t.Fatalf("expired nonce retained")
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
}

func TestWorkerIDPersisted(t *testing.T) {
	path := t.TempDir() + "/.worker_id"
	first := WorkerID(path)
	if first == "" {
		t.Fatalf("empty worker id")
	}
	second := WorkerID(path)
	if first != second {
		t.Fatalf("worker id not stable: %q vs %q", first, second)
	}
}

func TestWorkerIDEnvOverride(t *testing.T) {
	t.Setenv("GRAVITON_WORKER_ID", "worker-from-env")
	if id := WorkerID(t.TempDir() + "/.worker_id"); id != "worker-from-env" {
		t.Fatalf("env override ignored: %q", id)
	}
}
