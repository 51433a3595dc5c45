package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/sentinel-relay/internal/ingest"
	"github.com/mattjoyce/sentinel-relay/internal/journal"
	"github.com/mattjoyce/sentinel-relay/internal/normalize"
)

// Relay turns one inbound payload into one outbound delivery and maps the result
// to a caller response. It is shared by the HTTP server and the Lambda adapter.
type Relay struct {
	normalizer *normalize.Normalizer
	forwarder  Forwarder
	recorder   Recorder
	logger     *slog.Logger
}

// NewRelay creates a relay. A nil recorder disables the journal.
func NewRelay(n *normalize.Normalizer, f Forwarder, rec Recorder, logger *slog.Logger) *Relay {
	if rec == nil {
		rec = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		normalizer: n,
		forwarder:  f,
		recorder:   rec,
		logger:     logger,
	}
}

// Deliver normalizes body, forwards it under the resolved label and returns the
// response for the caller. Client errors never reach the collector.
func (r *Relay) Deliver(ctx context.Context, body any, queryLabel, requestID string) Response {
	entry := journal.Entry{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		ReceivedAt: time.Now().UTC(),
	}
	logger := r.logger.With("delivery_id", entry.ID)

	payload, err := r.normalizer.Normalize(body, queryLabel)
	if err != nil {
		resp := rejection(err)
		logger.Warn("payload rejected", "status", resp.StatusCode, "error", err)
		entry.Status = journal.StatusRejected
		entry.StatusCode = resp.StatusCode
		entry.Error = err.Error()
		r.record(ctx, logger, entry)
		return resp
	}

	entry.LogType = r.forwarder.LogType(payload.Label)
	entry.ContentLength = len(payload.Body)

	outcome, err := r.forwarder.Forward(ctx, payload.Body, payload.Label)
	if err != nil {
		resp := failure(err)
		entry.Status = journal.StatusFailed
		entry.Error = resp.Body
		var se *ingest.StatusError
		if errors.As(err, &se) {
			entry.StatusCode = se.StatusCode
		}
		logger.Error("delivery failed",
			"log_type", entry.LogType,
			"upstream_status", entry.StatusCode,
			"error", err,
		)
		r.record(ctx, logger, entry)
		return resp
	}

	entry.Status = journal.StatusDelivered
	entry.StatusCode = outcome.StatusCode
	logger.Info("payload delivered",
		"log_type", outcome.LogType,
		"content_length", outcome.ContentLength,
		"upstream_status", outcome.StatusCode,
	)
	r.record(ctx, logger, entry)

	data, err := json.Marshal(outcome)
	if err != nil {
		return Response{StatusCode: http.StatusInternalServerError, Body: bodyErrorPrefix + err.Error()}
	}
	return Response{StatusCode: http.StatusOK, Body: bodySuccessPrefix + string(data)}
}

// record stores the outcome. Journal failures are logged only.
func (r *Relay) record(ctx context.Context, logger *slog.Logger, e journal.Entry) {
	e.CompletedAt = time.Now().UTC()
	if _, err := r.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		logger.Warn("failed to record delivery", "error", err)
	}
}

func rejection(err error) Response {
	switch {
	case errors.Is(err, normalize.ErrMissingPayload):
		return Response{StatusCode: http.StatusBadRequest, Body: bodyMissingPayload}
	case errors.Is(err, normalize.ErrInvalidPayloadFormat):
		return Response{StatusCode: http.StatusBadRequest, Body: bodyInvalidJSON}
	case errors.Is(err, normalize.ErrInvalidLabel):
		return Response{StatusCode: http.StatusBadRequest, Body: bodyInvalidLabel}
	case errors.Is(err, normalize.ErrPayloadTooLarge):
		return Response{StatusCode: http.StatusRequestEntityTooLarge, Body: bodyTooLarge}
	default:
		return Response{StatusCode: http.StatusInternalServerError, Body: bodyErrorPrefix + err.Error()}
	}
}

func failure(err error) Response {
	// Configuration fault details stay in the logs.
	if errors.Is(err, ingest.ErrConfigurationFault) {
		return Response{StatusCode: http.StatusInternalServerError, Body: bodyErrorPrefix + ingest.ErrConfigurationFault.Error()}
	}
	return Response{StatusCode: http.StatusInternalServerError, Body: bodyErrorPrefix + err.Error()}
}
