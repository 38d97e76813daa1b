package upstream

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(baseURL string) *Client {
	c := New(baseURL, "test-key", 5*time.Second)
	c.SetRetryPolicy(3, 0)
	return c
}

func TestCallSuccess(t *testing.T) {
	var gotMethod, gotPath, gotKey, gotContentType, gotAcceptEncoding, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotContentType = r.Header.Get("Content-Type")
		gotAcceptEncoding = r.Header.Get("Accept-Encoding")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"m-1","label":"API Calls"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	status, body, err := client.Call(context.Background(), http.MethodPost, "/meters", map[string]string{"label": "API Calls"}, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if gotMethod != http.MethodPost || gotPath != "/meters" {
		t.Errorf("unexpected upstream request %s %s", gotMethod, gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("expected x-api-key test-key, got %q", gotKey)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", gotContentType)
	}
	if gotAcceptEncoding != "gzip" {
		t.Errorf("expected Accept-Encoding gzip, got %q", gotAcceptEncoding)
	}
	if gotBody != `{"label":"API Calls"}` {
		t.Errorf("unexpected request body %q", gotBody)
	}

	m, ok := body.(map[string]interface{})
	if !ok {
		t.Fatalf("expected decoded map, got %T", body)
	}
	if m["id"] != "m-1" {
		t.Errorf("expected id m-1, got %v", m["id"])
	}
}

func TestCallNilPayloadSendsNoBody(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, _, err := client.Call(context.Background(), http.MethodGet, "/meters", nil, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if gotBody != "" {
		t.Errorf("expected empty request body, got %q", gotBody)
	}
}

func TestCallQueryParams(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	q := url.Values{}
	q.Set("meterApiName", "api-calls")
	q.Set("limit", "10")
	_, _, err := client.Call(context.Background(), http.MethodGet, "/usage", nil, q)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if gotQuery.Get("meterApiName") != "api-calls" || gotQuery.Get("limit") != "10" {
		t.Errorf("unexpected query params: %v", gotQuery)
	}
}

func TestCallClientErrorNoRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"meter not found"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, _, err := client.Call(context.Background(), http.MethodGet, "/meters/nope", nil, nil)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}

	var ce *ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ClientError, got %T: %v", err, err)
	}
	if ce.Status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", ce.Status)
	}
	detail, ok := ce.Body.(map[string]interface{})
	if !ok || detail["message"] != "meter not found" {
		t.Errorf("expected upstream body as error detail, got %v", ce.Body)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("expected exactly 1 attempt for a client error, got %d", n)
	}
}

func TestCallServerErrorRetriesExhausted(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, _, err := client.Call(context.Background(), http.MethodPost, "/ingest", map[string]string{"a": "b"}, nil)
	if err == nil {
		t.Fatal("expected error for persistent 500s")
	}

	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ServerError, got %T: %v", err, err)
	}
	if se.Status != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", se.Status)
	}
	detail, ok := se.Body.(map[string]interface{})
	if !ok || detail["message"] != "boom" {
		t.Errorf("expected last decoded body as detail, got %v", se.Body)
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", n)
	}
}

func TestCallServerErrorThenSuccess(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	status, body, err := client.Call(context.Background(), http.MethodGet, "/meters", nil, nil)
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if m, ok := body.(map[string]interface{}); !ok || m["ok"] != true {
		t.Errorf("unexpected body %v", body)
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestDecodeGzipResponse(t *testing.T) {
	payload := `{"data":[{"meterApiName":"api-calls"}]}`

	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(payload))
	}))
	defer plain.Close()

	gzipped := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusOK)
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(payload))
		_ = gz.Close()
	}))
	defer gzipped.Close()

	_, plainBody, err := newTestClient(plain.URL).Call(context.Background(), http.MethodGet, "/usage", nil, nil)
	if err != nil {
		t.Fatalf("plain call failed: %v", err)
	}
	_, gzipBody, err := newTestClient(gzipped.URL).Call(context.Background(), http.MethodGet, "/usage", nil, nil)
	if err != nil {
		t.Fatalf("gzip call failed: %v", err)
	}

	pm := plainBody.(map[string]interface{})
	gm, ok := gzipBody.(map[string]interface{})
	if !ok {
		t.Fatalf("expected decoded map from gzip response, got %T", gzipBody)
	}
	if len(pm) != len(gm) {
		t.Errorf("gzip and plain decodes differ: %v vs %v", gm, pm)
	}
	if _, ok := gm["data"]; !ok {
		t.Errorf("expected data key in gzip decode, got %v", gm)
	}
}

func TestDecodeEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, body, err := newTestClient(server.URL).Call(context.Background(), http.MethodDelete, "/meters/m-1", nil, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	m, ok := body.(map[string]interface{})
	if !ok {
		t.Fatalf("expected empty map for empty body, got %T", body)
	}
	if len(m) != 0 {
		t.Errorf("expected empty map, got %v", m)
	}
}

func TestDecodeNonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("plain text response"))
	}))
	defer server.Close()

	_, body, err := newTestClient(server.URL).Call(context.Background(), http.MethodGet, "/meters", nil, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	s, ok := body.(string)
	if !ok {
		t.Fatalf("expected raw string for non-JSON body, got %T", body)
	}
	if s != "plain text response" {
		t.Errorf("unexpected body %q", s)
	}
}

func TestCallNetworkErrorNotRetried(t *testing.T) {
	// Unreachable address: the dial fails, which is not a retryable server error.
	client := newTestClient("http://127.0.0.1:1")
	_, _, err := client.Call(context.Background(), http.MethodGet, "/meters", nil, nil)
	if err == nil {
		t.Fatal("expected error for unreachable upstream")
	}
	var se *ServerError
	if errors.As(err, &se) {
		t.Errorf("network failure should not be classified as *ServerError")
	}
}
