package receiver

import (
	"context"
	"time"

	"github.com/mattjoyce/sentinel-relay/internal/ingest"
	"github.com/mattjoyce/sentinel-relay/internal/journal"
)

//go:generate mockgen -destination=mocks/mock_receiver.go -package=mocks github.com/mattjoyce/sentinel-relay/internal/receiver Forwarder,Recorder

// Forwarder delivers a normalized payload to the collector.
// *ingest.Forwarder satisfies it.
type Forwarder interface {
	Forward(ctx context.Context, body []byte, label string) (*ingest.Outcome, error)
	LogType(label string) string
}

// Recorder keeps delivery outcomes. *journal.Journal satisfies it.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) (string, error)
}

// Config holds receiver server configuration.
type Config struct {
	Listen string

	// Path is the URL path accepting payloads (e.g., "/api/noname-webhook-post").
	Path string

	// TypeParam is the query parameter carrying the type label.
	TypeParam string

	// MaxBodySize bounds the body read before caller verification (default: 1MB).
	MaxBodySize int64

	// Secret enables caller verification when set.
	Secret string

	// SignatureHeader is the HTTP header carrying the caller's signature.
	SignatureHeader string

	// ForwardTimeout is the outbound request timeout. The server's write
	// timeout is kept above it so callers always see the forward result.
	ForwardTimeout time.Duration
}

// Response is the plain-text answer given to the caller.
type Response struct {
	StatusCode int
	Body       string
}

// Default values
const (
	DefaultPath            = "/api/noname-webhook-post"
	DefaultTypeParam       = "type"
	DefaultSignatureHeader = "X-Signature-256"
	DefaultMaxBodySize     = 1048576 // 1 MB
	HealthPath             = "/healthz"
	DefaultWriteTimeout    = 60 * time.Second

	// writeMargin covers normalization and the response write after a forward.
	writeMargin = 10 * time.Second
)

// Response bodies. The wording is what existing senders already match on.
const (
	bodyMissingPayload = "No payload received."
	bodyErrorPrefix    = "Error processing request: "
	bodyInvalidJSON    = bodyErrorPrefix + "Invalid JSON format"
	bodyInvalidLabel   = bodyErrorPrefix + "invalid type label"
	bodyTooLarge       = bodyErrorPrefix + "payload too large"
	bodyForbidden      = "Forbidden"
	bodySuccessPrefix  = "Data: "
)

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, journal.Entry) (string, error) { return "", nil }
