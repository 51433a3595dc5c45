// Package signature builds SharedKey authorization headers for the Log Analytics
// HTTP Data Collector API.
//
// The string to sign is five newline-joined fields with no trailing newline:
//
//	POST
//	<content length in bytes>
//	application/json
//	x-ms-date:<RFC-1123 date>
//	/api/logs
//
// It is signed with HMAC-SHA256 keyed by the base64-decoded shared key, and the
// base64 digest is sent as "SharedKey <workspace id>:<digest>".
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// Method is the only HTTP method the collector accepts.
	Method = http.MethodPost
	// ContentType is the only body type the collector accepts.
	ContentType = "application/json"
	// Resource is the signed resource path.
	Resource = "/api/logs"
	// DateHeader carries the signed timestamp.
	DateHeader = "x-ms-date"
	// Scheme prefixes the Authorization header value.
	Scheme = "SharedKey"
)

// ErrInvalidKey is returned when the shared key is empty or not valid base64.
var ErrInvalidKey = errors.New("invalid shared key")

// Context holds the request metadata covered by the signature.
type Context struct {
	Method        string
	ContentLength int
	ContentType   string
	Date          string
}

// NewContext returns a POST/application/json context for a body of n bytes
// sent at t.
func NewContext(n int, t time.Time) Context {
	return Context{
		Method:        Method,
		ContentLength: n,
		ContentType:   ContentType,
		Date:          FormatDate(t),
	}
}

// FormatDate renders t as an RFC-1123 UTC date, e.g. "Tue, 01 Jan 2030 00:00:00 GMT".
func FormatDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// CanonicalString returns the exact string that is signed.
func CanonicalString(c Context) string {
	return strings.Join([]string{
		c.Method,
		strconv.Itoa(c.ContentLength),
		c.ContentType,
		DateHeader + ":" + c.Date,
		Resource,
	}, "\n")
}

// Sign returns the base64 HMAC-SHA256 of the canonical string for c.
func Sign(sharedKey string, c Context) (string, error) {
	key, err := decodeKey(sharedKey)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(CanonicalString(c)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Authorization returns the full Authorization header value.
func Authorization(workspaceID, sharedKey string, c Context) (string, error) {
	sig, err := Sign(sharedKey, c)
	if err != nil {
		return "", err
	}
	return Scheme + " " + workspaceID + ":" + sig, nil
}

// ValidateKey reports whether sharedKey can be used for signing.
func ValidateKey(sharedKey string) error {
	_, err := decodeKey(sharedKey)
	return err
}

func decodeKey(sharedKey string) ([]byte, error) {
	if strings.TrimSpace(sharedKey) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sharedKey))
	if err != nil {
		// Don't echo the key back in the error.
		return nil, fmt.Errorf("%w: not valid base64", ErrInvalidKey)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	return key, nil
}
