package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/rollcall/internal/types"
)

const MockExtractorName = "mock"

// MockExtractor is a deterministic Extractor for testing.
type MockExtractor struct {
	ProviderName string

	// Configurable behavior
	Latency    time.Duration
	ShouldFail bool
	FailAfter  int // Fail after N requests (0 = never)

	// Detections returns per document id; documents not listed get
	// DefaultDetections.
	Detections        map[string][]types.FieldDetection
	DefaultDetections []types.FieldDetection

	// Errors fails specific documents.
	Errors map[string]error

	// RateLimitFirst rejects the first N calls per document with a
	// RateLimitError carrying RateLimitRetryAfter.
	RateLimitFirst      int
	RateLimitRetryAfter time.Duration

	// Rate limiting
	RPS         float64
	Retries     int
	RetryDelay  time.Duration
	Concurrency int

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	calls        map[string]int
	inFlight     atomic.Int64
	maxInFlight  atomic.Int64
}

// NewMockExtractor creates a new mock extractor with sensible defaults.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{
		ProviderName: MockExtractorName,
		Latency:      10 * time.Millisecond,
		DefaultDetections: []types.FieldDetection{
			{FieldName: "Student Name", RawValue: "Mock Student", Confidence: 0.9},
		},
		Retries:    1,
		RetryDelay: 10 * time.Millisecond,
	}
}

// Name returns the extractor identifier.
func (m *MockExtractor) Name() string {
	return m.ProviderName
}

// RequestsPerSecond returns the rate limit.
func (m *MockExtractor) RequestsPerSecond() float64 {
	return m.RPS
}

// MaxRetries returns the max retry count.
func (m *MockExtractor) MaxRetries() int {
	return m.Retries
}

// RetryDelayBase returns the base retry delay.
func (m *MockExtractor) RetryDelayBase() time.Duration {
	return m.RetryDelay
}

// MaxConcurrency returns the configured concurrency cap.
func (m *MockExtractor) MaxConcurrency() int {
	return m.Concurrency
}

// Extract returns the configured detections for doc.
func (m *MockExtractor) Extract(ctx context.Context, doc *Document) (*ExtractionResult, error) {
	start := time.Now()
	count := m.requestCount.Add(1)

	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.maxInFlight.Load()
		if cur <= peak || m.maxInFlight.CompareAndSwap(peak, cur) {
			break
		}
	}

	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[doc.ID]++
	attempt := m.calls[doc.ID]
	m.mu.Unlock()

	if m.ShouldFail {
		return nil, fmt.Errorf("mock extractor configured to fail")
	}
	if m.FailAfter > 0 && int(count) > m.FailAfter {
		return nil, fmt.Errorf("mock extractor failed after %d requests", m.FailAfter)
	}
	if attempt <= m.RateLimitFirst {
		return nil, &RateLimitError{
			Message:    "mock rate limited",
			RetryAfter: m.RateLimitRetryAfter,
			StatusCode: 429,
		}
	}

	// Simulate latency
	select {
	case <-time.After(m.Latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err, ok := m.Errors[doc.ID]; ok {
		return nil, err
	}

	detections, ok := m.Detections[doc.ID]
	if !ok {
		detections = m.DefaultDetections
	}
	out := make([]types.FieldDetection, len(detections))
	copy(out, detections)

	return &ExtractionResult{
		Detections:    out,
		Provider:      m.ProviderName,
		Pages:         doc.Pages,
		ExecutionTime: time.Since(start),
	}, nil
}

// RequestCount returns the number of requests made.
func (m *MockExtractor) RequestCount() int64 {
	return m.requestCount.Load()
}

// Calls returns the number of Extract calls made for a document id.
func (m *MockExtractor) Calls(documentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[documentID]
}

// MaxInFlight returns the peak number of concurrent Extract calls.
func (m *MockExtractor) MaxInFlight() int64 {
	return m.maxInFlight.Load()
}

// Reset resets the request counters.
func (m *MockExtractor) Reset() {
	m.requestCount.Store(0)
	m.maxInFlight.Store(0)
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

// Verify interface
var _ Extractor = (*MockExtractor)(nil)
