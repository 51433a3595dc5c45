package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/mattjoyce/sentinel-relay/internal/config"
	"github.com/mattjoyce/sentinel-relay/internal/ingest"
	"github.com/mattjoyce/sentinel-relay/internal/log"
	"github.com/mattjoyce/sentinel-relay/internal/normalize"
	"github.com/mattjoyce/sentinel-relay/internal/receiver"
)

type handler struct {
	relay           *receiver.Relay
	typeParam       string
	secret          string
	signatureHeader string
}

func (h *handler) handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if request.Path == receiver.HealthPath {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Body:       `{"status":"ok"}`,
			Headers:    map[string]string{"Content-Type": "application/json"},
		}, nil
	}

	var body any = request.Body
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(request.Body)
		if err != nil {
			return textResponse(receiver.Response{
				StatusCode: http.StatusBadRequest,
				Body:       "Error processing request: Invalid JSON format",
			}), nil
		}
		body = decoded
	}

	if h.secret != "" {
		raw := []byte(request.Body)
		if decoded, ok := body.([]byte); ok {
			raw = decoded
		}
		if err := receiver.VerifySignature(raw, header(request.Headers, h.signatureHeader), h.secret); err != nil {
			log.Warn("caller signature rejected", "request_id", request.RequestContext.RequestID)
			return textResponse(receiver.Response{StatusCode: http.StatusForbidden, Body: "Forbidden"}), nil
		}
	}

	resp := h.relay.Deliver(ctx, body, request.QueryStringParameters[h.typeParam], request.RequestContext.RequestID)
	return textResponse(resp), nil
}

// header looks up name case-insensitively; API Gateway keeps the sender's casing.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func textResponse(resp receiver.Response) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
	}
}

func newHandler(cfg *config.Config) *handler {
	ingestLogger := log.WithComponent("ingest")
	fwd := ingest.New(cfg.IngestConfig(),
		ingest.WithClient(ingest.NewHTTPClient(cfg.Ingest.Timeout, ingestLogger)),
		ingest.WithLogger(ingestLogger),
	)
	relay := receiver.NewRelay(normalize.New(cfg.NormalizeOptions()), fwd, nil, log.WithComponent("relay"))
	return &handler{
		relay:           relay,
		typeParam:       cfg.Receiver.TypeParam,
		secret:          cfg.Receiver.Secret,
		signatureHeader: cfg.Receiver.SignatureHeader,
	}
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

	// Missing credentials are reported per request as a configuration fault.
	if err := cfg.ValidateCredentials(); err != nil {
		log.Warn("workspace credentials are not usable", "error", err)
	}

	lambda.Start(newHandler(cfg).handle)
}
