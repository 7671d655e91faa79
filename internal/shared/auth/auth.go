// Package auth implements Catapult's two signature shapes: the mutual
// Central<->Worker service signature (HMAC over a timestamp-prefixed
// body, with a replay window) and the source-control webhook signature
// (HMAC over the body alone, no timestamp).
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// ErrInvalid is returned for every signature failure mode. Per spec
// §4.1, rejection is opaque — callers must not distinguish unsigned,
// malformed, expired, skewed, or mismatched signatures.
var ErrInvalid = errors.New("invalid signature")

const (
	// MaxPastSkew is how far in the past a timestamp may be.
	MaxPastSkew = 300 * time.Second
	// MaxFutureSkew is how far in the future a timestamp may be.
	MaxFutureSkew = 60 * time.Second
)

// Sign computes the mutual service signature over a timestamp-prefixed
// body: hex(HMAC-SHA256(secret, BE64(timestamp) || body)), returned with
// the "sha256=" prefix, alongside the timestamp header value.
func Sign(secret []byte, body []byte, ts time.Time) (signature string, timestampHeader string) {
	sec := ts.Unix()
	mac := computeMAC(secret, sec, body)
	return "sha256=" + hex.EncodeToString(mac), strconv.FormatInt(sec, 10)
}

// Verify checks a mutual service signature against the current time.
func Verify(secret []byte, body []byte, signatureHeader, timestampHeader string, now time.Time) error {
	sec, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return ErrInvalid
	}
	ts := time.Unix(sec, 0)
	if now.Sub(ts) > MaxPastSkew {
		return ErrInvalid
	}
	if ts.Sub(now) > MaxFutureSkew {
		return ErrInvalid
	}
	want := computeMAC(secret, sec, body)
	return compareSignature(signatureHeader, want)
}

func computeMAC(secret []byte, unixSeconds int64, body []byte) []byte {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], uint64(unixSeconds))
	mac := hmac.New(sha256.New, secret)
	mac.Write(be[:])
	mac.Write(body)
	return mac.Sum(nil)
}

// SignWebhook computes the source-control webhook signature:
// hex(HMAC-SHA256(secret, body)), "sha256=" prefixed.
func SignWebhook(secret []byte, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook checks a source-control webhook signature. No timestamp
// gating.
func VerifyWebhook(secret []byte, body []byte, signatureHeader string) error {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return compareSignature(signatureHeader, mac.Sum(nil))
}

func compareSignature(header string, want []byte) error {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ErrInvalid
	}
	got, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return ErrInvalid
	}
	if !hmac.Equal(got, want) {
		return ErrInvalid
	}
	return nil
}

// Redact replaces any occurrence of a secret value (e.g. a git
// installation token) in a string with a fixed placeholder. Used on
// subprocess stderr before it is surfaced in logs or error messages.
func Redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return redactAll(s, secret)
}

func redactAll(s, secret string) string {
	const placeholder = "[REDACTED]"
	out := ""
	for {
		idx := indexOf(s, secret)
		if idx < 0 {
			return out + s
		}
		out += s[:idx] + placeholder
		s = s[idx+len(secret):]
	}
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 || m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}
