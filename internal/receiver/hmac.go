package receiver

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrCallerSignature is returned when an inbound body is not signed with the
// receiver secret. It carries no detail about why.
var ErrCallerSignature = errors.New("caller signature verification failed")

// VerifySignature checks an HMAC-SHA256 signature of body made with secret.
//
// Accepted formats:
//   - "sha256=<hex>"
//   - "<hex>"
//
// The comparison is constant-time.
func VerifySignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return ErrCallerSignature
	}

	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return ErrCallerSignature
	}

	if subtle.ConstantTimeCompare(computeSignature(body, secret), got) != 1 {
		return ErrCallerSignature
	}
	return nil
}

func computeSignature(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignBody returns the "sha256=<hex>" signature a caller sends for body.
func SignBody(body []byte, secret string) string {
	return "sha256=" + hex.EncodeToString(computeSignature(body, secret))
}
