package ingest

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single outbound call.
const DefaultTimeout = 30 * time.Second

// loggingTransport logs outbound calls. Bodies and the Authorization header
// are never logged.
type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		t.logger.Error("collector request failed",
			"method", req.Method,
			"host", req.URL.Host,
			"log_type", req.Header.Get("Log-Type"),
			"error", err,
			"duration_ms", elapsed.Milliseconds(),
		)
		return nil, err
	}

	t.logger.Info("collector request completed",
		"method", req.Method,
		"host", req.URL.Host,
		"log_type", req.Header.Get("Log-Type"),
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
	)
	return resp, nil
}

// NewHTTPClient returns an *http.Client with the given timeout whose transport
// logs every call. A zero timeout selects DefaultTimeout.
func NewHTTPClient(timeout time.Duration, logger *slog.Logger) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &http.Client{
		Transport: &loggingTransport{
			next: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
			logger: logger,
		},
		Timeout: timeout,
	}
}
