package receiver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/sentinel-relay/internal/ingest"
	"github.com/mattjoyce/sentinel-relay/internal/signature"
)

const (
	testWorkspace = "00000000-1111-2222-3333-444444444444"
	testKey       = "dGVzdC1zaGFyZWQta2V5LTAxMjM0NTY3ODlhYmNkZWY="
)

type collector struct {
	calls   atomic.Int32
	status  int
	lastReq *http.Request
	body    []byte
}

func (c *collector) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.calls.Add(1)
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		c.lastReq = r
		c.body = body
		w.WriteHeader(c.status)
	}
}

func newTestServer(t *testing.T, status int) (*httptest.Server, *collector) {
	t.Helper()
	return newTestServerWithConfig(t, status, Config{})
}

func newTestServerWithConfig(t *testing.T, status int, cfg Config) (*httptest.Server, *collector) {
	t.Helper()
	col := &collector{status: status}
	upstream := httptest.NewServer(col.handler(t))
	t.Cleanup(upstream.Close)

	fwd := ingest.New(ingest.Config{
		Credentials: ingest.Credentials{WorkspaceID: testWorkspace, SharedKey: testKey},
		Endpoint:    upstream.URL,
	}, ingest.WithClient(upstream.Client()), ingest.WithLogger(quietLogger()))

	relay := NewRelay(testNormalizer(), fwd, nil, quietLogger())
	srv := httptest.NewServer(New(cfg, relay, quietLogger()).Handler())
	t.Cleanup(srv.Close)
	return srv, col
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestWebhookEndToEnd(t *testing.T) {
	srv, col := newTestServer(t, http.StatusOK)

	status, body := post(t, srv.URL+DefaultPath+"?type=alerts", `{"event": "login", "user": "ü"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `Data: {"status":200}`, body)

	require.EqualValues(t, 1, col.calls.Load())
	req := col.lastReq
	assert.Equal(t, "/api/logs", req.URL.Path)
	assert.Equal(t, "2016-04-01", req.URL.Query().Get("api-version"))
	assert.Equal(t, "Noname_alerts", req.Header.Get("Log-Type"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, `{"event":"login","user":"ü"}`, string(col.body))

	date := req.Header.Get("x-ms-date")
	_, err := time.Parse(http.TimeFormat, date)
	require.NoError(t, err)

	want, err := signature.Authorization(testWorkspace, testKey, signature.Context{
		Method:        signature.Method,
		ContentLength: len(col.body),
		ContentType:   signature.ContentType,
		Date:          date,
	})
	require.NoError(t, err)
	assert.Equal(t, want, req.Header.Get("Authorization"))
}

func TestWebhookClientErrorsMakeNoOutboundCall(t *testing.T) {
	srv, col := newTestServer(t, http.StatusOK)

	status, body := post(t, srv.URL+DefaultPath+"?type=alerts", "{not json")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Error processing request: Invalid JSON format", body)

	status, body = post(t, srv.URL+DefaultPath+"?type=alerts", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No payload received.", body)

	assert.EqualValues(t, 0, col.calls.Load())
}

func TestWebhookUpstreamForbidden(t *testing.T) {
	srv, col := newTestServer(t, http.StatusForbidden)

	status, body := post(t, srv.URL+DefaultPath+"?type=alerts", `{"a":1}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.True(t, strings.HasPrefix(body, "Error processing request: "), body)
	assert.EqualValues(t, 1, col.calls.Load())
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK)

	resp, err := http.Get(srv.URL + HealthPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}

func TestWebhookRejectsOtherMethods(t *testing.T) {
	srv, col := newTestServer(t, http.StatusOK)

	resp, err := http.Get(srv.URL + DefaultPath)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.EqualValues(t, 0, col.calls.Load())
}

func postSigned(t *testing.T, url, body, header, signature string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	if signature != "" {
		req.Header.Set(header, signature)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestWebhookCallerVerification(t *testing.T) {
	const secret = "caller-secret"
	srv, col := newTestServerWithConfig(t, http.StatusOK, Config{Secret: secret})
	url := srv.URL + DefaultPath + "?type=alerts"
	body := `{"a":1}`

	status, resp := postSigned(t, url, body, DefaultSignatureHeader, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Forbidden", resp)

	status, _ = postSigned(t, url, body, DefaultSignatureHeader, SignBody([]byte(body), "other"))
	assert.Equal(t, http.StatusForbidden, status)
	assert.EqualValues(t, 0, col.calls.Load())

	status, resp = postSigned(t, url, body, DefaultSignatureHeader, SignBody([]byte(body), secret))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `Data: {"status":200}`, resp)
	assert.EqualValues(t, 1, col.calls.Load())
}

func TestWebhookCallerVerificationBodyLimit(t *testing.T) {
	const secret = "caller-secret"
	srv, col := newTestServerWithConfig(t, http.StatusOK, Config{Secret: secret, MaxBodySize: 16})

	body := `{"padding":"` + strings.Repeat("x", 32) + `"}`
	status, resp := postSigned(t, srv.URL+DefaultPath+"?type=alerts", body, DefaultSignatureHeader, SignBody([]byte(body), secret))
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, "Error processing request: payload too large", resp)
	assert.EqualValues(t, 0, col.calls.Load())
}

func TestWebhookCustomPathAndTypeParam(t *testing.T) {
	srv, col := newTestServerWithConfig(t, http.StatusOK, Config{Path: "/ingest", TypeParam: "table"})

	status, _ := post(t, srv.URL+"/ingest?table=audit", `{"a":1}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Noname_audit", col.lastReq.Header.Get("Log-Type"))

	resp, err := http.Post(srv.URL+DefaultPath, "application/json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.EqualValues(t, 1, col.calls.Load())
}

func TestWriteTimeoutOutlastsForward(t *testing.T) {
	tests := []struct {
		name    string
		forward time.Duration
		want    time.Duration
	}{
		{"unset", 0, DefaultWriteTimeout},
		{"default forward", 30 * time.Second, DefaultWriteTimeout},
		{"forward at write default", 60 * time.Second, 70 * time.Second},
		{"long forward", 2 * time.Minute, 2*time.Minute + 10*time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{ForwardTimeout: tt.forward}, nil, quietLogger())
			got := s.writeTimeout()
			assert.Equal(t, tt.want, got)
			assert.Greater(t, got, tt.forward)
		})
	}
}
