// Package event is the Lambda-facing entry point. API Gateway events are
// adapted onto the HTTP router; EventBridge ingestion events bypass it and go
// straight to the shared ingest logic.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/metergate/metergate/internal/metering"
)

// IngestDetailType marks the asynchronous events that carry a usage
// measurement instead of an HTTP request.
const IngestDetailType = "ingestUsage"

// Handler dispatches raw Lambda invocations.
type Handler struct {
	upstream metering.Caller
	router   http.Handler
}

func NewHandler(upstream metering.Caller, router http.Handler) *Handler {
	return &Handler{upstream: upstream, router: router}
}

// Invoke handles one Lambda invocation. Ingestion events return the decoded
// upstream body unwrapped; everything else is treated as an API Gateway v2
// HTTP request and served through the router.
func (h *Handler) Invoke(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var probe struct {
		DetailType string          `json:"detail-type"`
		Detail     json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.DetailType == IngestDetailType {
		return h.ingest(ctx, probe.Detail)
	}

	var req events.APIGatewayV2HTTPRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("unsupported event shape: %w", err)
	}
	return serveAPIGateway(ctx, h.router, req)
}

// ingest builds the measurement from the event detail. Some producers wrap
// the fields in a nested "meter" object; both layouts are accepted.
func (h *Handler) ingest(ctx context.Context, rawDetail json.RawMessage) (interface{}, error) {
	var detail map[string]interface{}
	if err := json.Unmarshal(rawDetail, &detail); err != nil {
		return nil, fmt.Errorf("parsing event detail: %w", err)
	}
	if meter, ok := detail["meter"].(map[string]interface{}); ok {
		detail = meter
	}
	return metering.Ingest(ctx, h.upstream, detail, time.Now())
}
