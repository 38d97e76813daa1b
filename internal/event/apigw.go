package event

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// serveAPIGateway adapts an API Gateway v2 HTTP event onto the router and
// translates the captured response back into the event shape.
func serveAPIGateway(ctx context.Context, router http.Handler, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := req.RequestContext.HTTP.Method
	if method == "" {
		method = http.MethodGet
	}
	target := req.RawPath
	if target == "" {
		target = "/"
	}
	if req.RawQueryString != "" {
		target += "?" + req.RawQueryString
	}

	var body io.Reader = strings.NewReader(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return events.APIGatewayV2HTTPResponse{}, fmt.Errorf("decoding request body: %w", err)
		}
		body = bytes.NewReader(decoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, fmt.Errorf("building request from event: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	rec := &responseRecorder{header: make(http.Header)}
	router.ServeHTTP(rec, httpReq)

	headers := make(map[string]string, len(rec.header))
	for k, vs := range rec.header {
		headers[k] = strings.Join(vs, ",")
	}

	return events.APIGatewayV2HTTPResponse{
		StatusCode: rec.statusOrOK(),
		Headers:    headers,
		Body:       rec.body.String(),
	}, nil
}

// responseRecorder captures the router's response for translation.
type responseRecorder struct {
	status int
	header http.Header
	body   bytes.Buffer
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

func (r *responseRecorder) statusOrOK() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
