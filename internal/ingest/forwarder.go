package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mattjoyce/sentinel-relay/internal/signature"
)

var workspacePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*$`)

// Forwarder signs payloads and posts them to the collector, once per call.
type Forwarder struct {
	cfg    Config
	client Doer
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithClient sets the HTTP client capability used for the outbound call.
func WithClient(c Doer) Option {
	return func(f *Forwarder) {
		f.client = c
	}
}

// WithClock overrides the time source used for x-ms-date.
func WithClock(now func() time.Time) Option {
	return func(f *Forwarder) {
		f.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Forwarder) {
		f.logger = l
	}
}

// New creates a Forwarder. Credentials are not checked here; call Validate at
// startup, otherwise a fault is reported by Forward.
func New(cfg Config, opts ...Option) *Forwarder {
	if cfg.Cloud == "" {
		cfg.Cloud = CloudCommercial
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.LogTypePrefix == "" {
		cfg.LogTypePrefix = DefaultLogTypePrefix
	}

	f := &Forwarder{
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = NewHTTPClient(DefaultTimeout, f.logger)
	}
	return f
}

// Validate reports a configuration fault for missing or unusable credentials.
func (f *Forwarder) Validate() error {
	id := strings.TrimSpace(f.cfg.Credentials.WorkspaceID)
	if id == "" {
		return fmt.Errorf("%w: workspace id is not set", ErrConfigurationFault)
	}
	if !workspacePattern.MatchString(id) {
		return fmt.Errorf("%w: workspace id %q is not a valid host label", ErrConfigurationFault, id)
	}
	if err := signature.ValidateKey(f.cfg.Credentials.SharedKey); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigurationFault, err)
	}
	return nil
}

// URL returns the collector endpoint including the api-version parameter.
func (f *Forwarder) URL() string {
	base := f.cfg.Endpoint
	if base == "" {
		base = fmt.Sprintf("https://%s.ods.opinsights.azure.%s",
			strings.TrimSpace(f.cfg.Credentials.WorkspaceID), f.cfg.Cloud.DomainSuffix())
	}
	return strings.TrimRight(base, "/") + signature.Resource + "?api-version=" + f.cfg.APIVersion
}

// LogType returns the Log-Type header value for label.
func (f *Forwarder) LogType(label string) string {
	return f.cfg.LogTypePrefix + label
}

// Forward posts body (compact JSON) under the given type label. It makes exactly
// one outbound attempt. A non-2xx answer is returned as *StatusError.
func (f *Forwarder) Forward(ctx context.Context, body []byte, label string) (*Outcome, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	// One timestamp per attempt: it is both signed and sent.
	sc := signature.NewContext(len(body), f.now())
	auth, err := signature.Authorization(strings.TrimSpace(f.cfg.Credentials.WorkspaceID), f.cfg.Credentials.SharedKey, sc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigurationFault, err)
	}

	req, err := http.NewRequestWithContext(ctx, signature.Method, f.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrForwardingFailure, err)
	}
	logType := f.LogType(label)
	req.ContentLength = int64(sc.ContentLength)
	req.Header.Set("Content-Type", signature.ContentType)
	req.Header.Set("Authorization", auth)
	req.Header.Set("Log-Type", logType)
	req.Header.Set(signature.DateHeader, sc.Date)
	if f.cfg.TimeGeneratedField != "" {
		req.Header.Set("time-generated-field", f.cfg.TimeGeneratedField)
	}

	f.logger.Debug("forwarding payload",
		"log_type", logType,
		"content_length", sc.ContentLength,
	)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForwardingFailure, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	return &Outcome{
		StatusCode:    resp.StatusCode,
		LogType:       logType,
		ContentLength: sc.ContentLength,
		Date:          sc.Date,
	}, nil
}

func statusText(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
