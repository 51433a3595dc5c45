package ingest

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_doer.go -package=mocks github.com/mattjoyce/sentinel-relay/internal/ingest Doer

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Errors returned by Forward.
var (
	ErrForwardingFailure  = errors.New("forwarding failed")
	ErrConfigurationFault = errors.New("ingest configuration fault")
)

// Cloud selects the collector's domain.
type Cloud string

const (
	CloudCommercial Cloud = "commercial"
	CloudGovernment Cloud = "government"
)

// ParseCloud parses a cloud name. Empty input selects CloudCommercial.
func ParseCloud(s string) (Cloud, error) {
	switch Cloud(strings.ToLower(strings.TrimSpace(s))) {
	case "", CloudCommercial:
		return CloudCommercial, nil
	case CloudGovernment:
		return CloudGovernment, nil
	default:
		return "", fmt.Errorf("unknown cloud %q (want %q or %q)", s, CloudCommercial, CloudGovernment)
	}
}

// DomainSuffix returns the top-level domain of the collector host.
func (c Cloud) DomainSuffix() string {
	if c == CloudGovernment {
		return "us"
	}
	return "com"
}

// Credentials identify and authenticate the destination workspace.
type Credentials struct {
	WorkspaceID string
	SharedKey   string
}

// Config holds forwarder settings.
type Config struct {
	Credentials Credentials
	Cloud       Cloud

	// APIVersion is sent as the api-version query parameter.
	APIVersion string

	// LogTypePrefix is prepended to the type label in the Log-Type header.
	LogTypePrefix string

	// TimeGeneratedField, when set, is sent as the time-generated-field header.
	TimeGeneratedField string

	// Endpoint replaces "https://<workspace>.ods.opinsights.azure.<tld>" when set.
	Endpoint string
}

// Outcome describes a delivery the collector accepted.
type Outcome struct {
	StatusCode    int    `json:"status"`
	LogType       string `json:"-"`
	ContentLength int    `json:"-"`
	Date          string `json:"-"`
}

// StatusError is returned when the collector answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: %s", ErrForwardingFailure, e.Status)
	}
	return fmt.Sprintf("%v: %s - %s", ErrForwardingFailure, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrForwardingFailure
}

// Default values
const (
	DefaultAPIVersion    = "2016-04-01"
	DefaultLogTypePrefix = "Noname_"

	// maxErrorBody caps how much of a failed response is kept for diagnostics.
	maxErrorBody = 4096
)
