package providers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const azureSucceeded = `{
	"status": "succeeded",
	"analyzeResult": {
		"apiVersion": "2023-07-31",
		"modelId": "prebuilt-document",
		"pages": [{}, {}],
		"keyValuePairs": [
			{"key": {"content": "Student Name"}, "value": {"content": "Jon Smith"}, "confidence": 0.91},
			{"key": {"content": "Bus Route"}, "confidence": 0.4},
			{"value": {"content": "orphan"}, "confidence": 0.9}
		]
	}
}`

func newAzureTestServer(t *testing.T, polls *atomic.Int32, final string) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" {
			t.Errorf("missing subscription key header")
		}
		switch {
		case r.Method == http.MethodPost:
			if !strings.HasSuffix(r.URL.Path, "/formrecognizer/documentModels/prebuilt-document:analyze") {
				t.Fatalf("unexpected path: %s", r.URL.Path)
			}
			if got := r.URL.Query().Get("api-version"); got != AzureDocumentAPIVersion {
				t.Errorf("api-version = %q", got)
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != "%PDF-1.7" {
				t.Errorf("unexpected body %q", body)
			}
			w.Header().Set("Operation-Location", server.URL+"/operations/abc")
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodGet && r.URL.Path == "/operations/abc":
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"status":"running"}`))
				return
			}
			_, _ = w.Write([]byte(final))
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	return server
}

func TestAzureDocumentExtract(t *testing.T) {
	var polls atomic.Int32
	server := newAzureTestServer(t, &polls, azureSucceeded)
	defer server.Close()

	e := NewAzureDocumentExtractor(AzureDocumentConfig{
		Endpoint:     server.URL + "/",
		APIKey:       "test-key",
		PollInterval: time.Millisecond,
	})

	result, err := e.Extract(context.Background(), &Document{ID: "a.pdf", Data: []byte("%PDF-1.7")})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if polls.Load() != 3 {
		t.Errorf("polls = %d, want 3", polls.Load())
	}
	if result.Pages != 2 || result.Model != "prebuilt-document" {
		t.Errorf("Pages = %d, Model = %q", result.Pages, result.Model)
	}
	if len(result.Detections) != 2 {
		t.Fatalf("Detections = %+v, want 2 (keyless pair dropped)", result.Detections)
	}
	if d := result.Detections[0]; d.FieldName != "Student Name" || d.RawValue != "Jon Smith" || d.Confidence != 0.91 {
		t.Errorf("Detections[0] = %+v", d)
	}
	if d := result.Detections[1]; d.FieldName != "Bus Route" || d.RawValue != "" {
		t.Errorf("Detections[1] = %+v", d)
	}
}

func TestAzureDocumentAnalysisFailed(t *testing.T) {
	var polls atomic.Int32
	server := newAzureTestServer(t, &polls, `{"status":"failed","error":{"code":"InvalidContent","message":"corrupt file"}}`)
	defer server.Close()

	e := NewAzureDocumentExtractor(AzureDocumentConfig{
		Endpoint:     server.URL,
		APIKey:       "test-key",
		PollInterval: time.Millisecond,
	})

	_, err := e.Extract(context.Background(), &Document{ID: "a.pdf", Data: []byte("%PDF-1.7")})
	if err == nil || !strings.Contains(err.Error(), "corrupt file") {
		t.Fatalf("Extract() error = %v, want analysis failure", err)
	}
	if IsRateLimitError(err) {
		t.Error("analysis failure is not a rate limit")
	}
}

func TestAzureDocumentRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "4")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"429","message":"Requests to the Analyze Document API have exceeded the call rate limit"}}`))
	}))
	defer server.Close()

	e := NewAzureDocumentExtractor(AzureDocumentConfig{Endpoint: server.URL, APIKey: "test-key"})

	_, err := e.Extract(context.Background(), &Document{ID: "a.pdf", Data: []byte("%PDF-1.7")})
	if !IsRateLimitError(err) {
		t.Fatalf("Extract() error = %v, want RateLimitError", err)
	}
	if got := RetryAfter(err); got != 4*time.Second {
		t.Errorf("RetryAfter = %v, want 4s", got)
	}
	if !strings.Contains(err.Error(), "exceeded the call rate limit") {
		t.Errorf("error lost provider detail: %v", err)
	}
}

func TestAzureDocumentRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"401","message":"Access denied due to invalid subscription key"}}`))
	}))
	defer server.Close()

	e := NewAzureDocumentExtractor(AzureDocumentConfig{Endpoint: server.URL, APIKey: "test-key"})

	_, err := e.Extract(context.Background(), &Document{ID: "a.pdf", Data: []byte("%PDF-1.7")})
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("Extract() error = %v", err)
	}
}

func TestAzureDocumentEmpty(t *testing.T) {
	e := NewAzureDocumentExtractor(AzureDocumentConfig{Endpoint: "http://unused", APIKey: "k"})
	if _, err := e.Extract(context.Background(), &Document{ID: "a.pdf"}); err != ErrEmptyDocument {
		t.Errorf("Extract() error = %v, want ErrEmptyDocument", err)
	}
	if e.RequestsPerSecond() != 1.0 || e.MaxRetries() != 1 {
		t.Errorf("defaults: rps = %v, retries = %d", e.RequestsPerSecond(), e.MaxRetries())
	}
}
