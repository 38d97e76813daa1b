package metering

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Caller is the outbound interface ingestion needs from the upstream client.
type Caller interface {
	Call(ctx context.Context, method, path string, payload interface{}, query url.Values) (int, interface{}, error)
}

// Ingest builds an ingest event from a raw detail map and submits it upstream.
// It is shared by the synchronous route handler and the asynchronous event
// entry, which differ only in how the detail map arrives.
func Ingest(ctx context.Context, c Caller, detail map[string]interface{}, now time.Time) (interface{}, error) {
	ev, err := NewIngestEvent(detail, now)
	if err != nil {
		return nil, err
	}
	_, body, err := c.Call(ctx, http.MethodPost, "/ingest", ev, nil)
	if err != nil {
		return nil, err
	}
	return body, nil
}
