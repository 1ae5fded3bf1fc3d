package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/rollcall/internal/ingest"
	"github.com/jackzampolin/rollcall/internal/providers"
	"github.com/jackzampolin/rollcall/internal/roster"
	"github.com/jackzampolin/rollcall/internal/types"
)

const testRoster = "Student ID,Student Name,Grade\n" +
	"42,Jonathan Smith,3\n" +
	"7,Alex Lee,5\n"

func loadRoster(t *testing.T) []types.ReferenceRecord {
	t.Helper()
	r, err := roster.ReadCSV(strings.NewReader(testRoster), roster.Config{})
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	return r.Records
}

func sourcesFor(ids ...string) []ingest.Source {
	out := make([]ingest.Source, len(ids))
	for i, id := range ids {
		out[i] = ingest.Source{ID: id, Path: "/inbox/" + id, Kind: ingest.KindPDF, Position: i + 1}
	}
	return out
}

// memLoader serves placeholder bytes and fails sources named broken*.
var memLoader = LoaderFunc(func(ctx context.Context, src ingest.Source) (*providers.Document, error) {
	if strings.HasPrefix(src.ID, "broken") {
		return nil, errors.New("failed to read PDF: unexpected EOF")
	}
	return &providers.Document{ID: src.ID, Position: src.Position, Path: src.Path, Data: []byte("%PDF-1.7"), Pages: 1}, nil
})

func detect(pairs ...string) []types.FieldDetection {
	var out []types.FieldDetection
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, types.FieldDetection{FieldName: pairs[i], RawValue: pairs[i+1], Confidence: 0.9})
	}
	return out
}

func newMock() *providers.MockExtractor {
	m := providers.NewMockExtractor()
	m.Latency = time.Millisecond
	m.RetryDelay = time.Millisecond
	m.Detections = map[string][]types.FieldDetection{
		"a.pdf": detect("Student Name", "Jon Smith", "Grade", "3rd"),
		"b.pdf": detect("Student Name", "Alex Lee", "Grade", "4"),
		"c.pdf": detect("Name", "ALEX  LEE"),
		"d.pdf": detect("Grade", "2"),
		"x.pdf": detect("Student Name", "Johnny S", "Student ID", "42"),
	}
	m.Errors = map[string]error{"e.pdf": errors.New("provider returned 500")}
	return m
}

func newOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.Loader == nil {
		cfg.Loader = memLoader
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestRun(t *testing.T) {
	refs := loadRoster(t)
	o := newOrchestrator(t, Config{Extractor: newMock()})

	sources := sourcesFor("a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf", "broken.pdf")
	result, err := o.Run(context.Background(), sources, refs, 0.75)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Rows) != len(sources) {
		t.Fatalf("rows = %d, want %d", len(result.Rows), len(sources))
	}

	type outcome struct {
		Document string
		Position int
		Status   types.RecordStatus
		Basis    types.MatchBasis
		Ref      string
	}
	var got []outcome
	for _, row := range result.Rows {
		got = append(got, outcome{row.DocumentID, row.Position, row.Status, row.Match.Basis, row.Match.ReferenceID})
	}
	want := []outcome{
		{"a.pdf", 1, types.StatusFullMatch, types.BasisNameFuzzy, "42"},
		{"b.pdf", 2, types.StatusPartialMatch, types.BasisNameExact, "7"},
		{"c.pdf", 3, types.StatusUnmatched, types.BasisUnmatched, ""},
		{"d.pdf", 4, types.StatusExtractionFailed, types.BasisUnmatched, ""},
		{"e.pdf", 5, types.StatusExtractionFailed, types.BasisUnmatched, ""},
		{"broken.pdf", 6, types.StatusExtractionFailed, types.BasisUnmatched, ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	grade, ok := result.Rows[1].Comparison(types.FieldGrade)
	if !ok || grade.Status != types.ComparisonMismatch {
		t.Errorf("b.pdf grade comparison = %+v, want MISMATCH", grade)
	}
	if !strings.Contains(result.Rows[4].Error, "provider returned 500") {
		t.Errorf("e.pdf error = %q", result.Rows[4].Error)
	}
	if !strings.Contains(result.Rows[3].Error, "full_name") {
		t.Errorf("d.pdf error = %q, want missing full_name", result.Rows[3].Error)
	}

	seen := make(map[string]string)
	for _, row := range result.Rows {
		ref := row.Match.ReferenceID
		if ref == "" {
			continue
		}
		if prev, dup := seen[ref]; dup {
			t.Errorf("reference %s claimed by %s and %s", ref, prev, row.DocumentID)
		}
		seen[ref] = row.DocumentID
	}

	if result.Stats.Documents != 6 || result.Stats.Matched != 2 {
		t.Errorf("stats = %+v", result.Stats)
	}
	if result.Records[3] != nil || result.Records[0] == nil {
		t.Error("records should be nil exactly for failed documents")
	}
}

func TestRunExactIDIgnoresName(t *testing.T) {
	o := newOrchestrator(t, Config{Extractor: newMock()})

	result, err := o.Run(context.Background(), sourcesFor("x.pdf", "a.pdf"), loadRoster(t), 0.75)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if m := result.Rows[0].Match; m.Basis != types.BasisExactID || m.ReferenceID != "42" || m.Score != 1.0 {
		t.Errorf("x.pdf match = %+v, want EXACT_ID on 42", m)
	}
	if m := result.Rows[1].Match; m.Basis != types.BasisUnmatched {
		t.Errorf("a.pdf match = %+v, want UNMATCHED once 42 is claimed", m)
	}
}

func TestRunEmptyRoster(t *testing.T) {
	o := newOrchestrator(t, Config{Extractor: newMock()})

	result, err := o.Run(context.Background(), sourcesFor("a.pdf", "b.pdf"), nil, 0.75)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, row := range result.Rows {
		if row.Status != types.StatusUnmatched {
			t.Errorf("%s status = %s, want UNMATCHED", row.DocumentID, row.Status)
		}
	}
}

func TestRunIsDeterministic(t *testing.T) {
	refs := loadRoster(t)
	sources := sourcesFor("a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf")

	run := func() []types.ValidationReportRow {
		o := newOrchestrator(t, Config{Extractor: newMock(), Workers: 3})
		result, err := o.Run(context.Background(), sources, refs, 0.75)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		return result.Rows
	}

	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("rows differ between runs (-first +second):\n%s", diff)
	}
}

func TestExtractRateLimitRetry(t *testing.T) {
	t.Run("one retry succeeds", func(t *testing.T) {
		m := newMock()
		m.RateLimitFirst = 1
		m.RateLimitRetryAfter = 10 * time.Millisecond
		o := newOrchestrator(t, Config{Extractor: m})

		start := time.Now()
		batch, err := o.Extract(context.Background(), sourcesFor("a.pdf"))
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		ex := batch.Extractions[0]
		if ex.Err != nil || ex.Attempts != 2 {
			t.Fatalf("extraction = %+v, want success on second attempt", ex)
		}
		if m.Calls("a.pdf") != 2 {
			t.Errorf("calls = %d, want 2", m.Calls("a.pdf"))
		}
		if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
			t.Errorf("retry did not honor Retry-After: %v", elapsed)
		}
		if o.RateLimiterStatus().Last429Time.IsZero() {
			t.Error("limiter did not record the 429")
		}
	})

	t.Run("persistent rate limit fails the document", func(t *testing.T) {
		m := newMock()
		m.RateLimitFirst = 5
		o := newOrchestrator(t, Config{Extractor: m})

		batch, err := o.Extract(context.Background(), sourcesFor("a.pdf", "b.pdf"))
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		for _, ex := range batch.Extractions {
			if !providers.IsRateLimitError(ex.Err) {
				t.Errorf("%s error = %v, want RateLimitError", ex.Source.ID, ex.Err)
			}
			var ee *providers.ExtractionError
			if !errors.As(ex.Err, &ee) || ee.Document != ex.Source.ID {
				t.Errorf("%s error is not an ExtractionError: %v", ex.Source.ID, ex.Err)
			}
			if got := m.Calls(ex.Source.ID); got != 2 {
				t.Errorf("%s calls = %d, want exactly one retry", ex.Source.ID, got)
			}
		}
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		m := newMock()
		o := newOrchestrator(t, Config{Extractor: m})

		batch, err := o.Extract(context.Background(), sourcesFor("e.pdf"))
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if batch.Extractions[0].Err == nil || m.Calls("e.pdf") != 1 {
			t.Errorf("extraction = %+v, calls = %d", batch.Extractions[0], m.Calls("e.pdf"))
		}
	})
}

// stallingExtractor blocks on one document until its context ends.
type stallingExtractor struct {
	*providers.MockExtractor
	stall string
}

func (s *stallingExtractor) Extract(ctx context.Context, doc *providers.Document) (*providers.ExtractionResult, error) {
	if doc.ID == s.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.MockExtractor.Extract(ctx, doc)
}

func TestExtractPerDocumentTimeout(t *testing.T) {
	o := newOrchestrator(t, Config{
		Extractor:       &stallingExtractor{MockExtractor: newMock(), stall: "a.pdf"},
		DocumentTimeout: 30 * time.Millisecond,
	})

	result, err := o.Run(context.Background(), sourcesFor("a.pdf", "b.pdf"), loadRoster(t), 0.75)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := result.Rows[0]; got.Status != types.StatusExtractionFailed || !strings.Contains(got.Error, "timed out") {
		t.Errorf("a.pdf row = %+v, want timed out EXTRACTION_FAILED", got)
	}
	if got := result.Rows[1].Status; got != types.StatusPartialMatch {
		t.Errorf("b.pdf status = %s, want PARTIAL_MATCH unaffected by the timeout", got)
	}
}

// emptyExtractor answers one document with neither a result nor an error.
type emptyExtractor struct {
	*providers.MockExtractor
	empty string
}

func (e *emptyExtractor) Extract(ctx context.Context, doc *providers.Document) (*providers.ExtractionResult, error) {
	if doc.ID == e.empty {
		return nil, nil
	}
	return e.MockExtractor.Extract(ctx, doc)
}

func TestExtractEmptyResponse(t *testing.T) {
	o := newOrchestrator(t, Config{Extractor: &emptyExtractor{MockExtractor: newMock(), empty: "a.pdf"}})

	result, err := o.Run(context.Background(), sourcesFor("a.pdf", "b.pdf"), loadRoster(t), 0.75)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}
	if got := result.Rows[0]; got.Status != types.StatusExtractionFailed || !strings.Contains(got.Error, "empty response") {
		t.Errorf("a.pdf row = %+v, want empty response EXTRACTION_FAILED", got)
	}
	if got := result.Rows[1].Status; got != types.StatusPartialMatch {
		t.Errorf("b.pdf status = %s, want PARTIAL_MATCH", got)
	}
}

func TestNormalizeWithoutResult(t *testing.T) {
	o := newOrchestrator(t, Config{Extractor: newMock()})

	_, err := o.Normalize(Extraction{Source: sourcesFor("a.pdf")[0]})
	if !errors.Is(err, providers.ErrNoDetections) {
		t.Errorf("Normalize() error = %v, want ErrNoDetections", err)
	}
}

func TestExtractBoundedConcurrency(t *testing.T) {
	m := newMock()
	m.Latency = 15 * time.Millisecond
	o := newOrchestrator(t, Config{Extractor: m, Workers: 2})

	ids := make([]string, 8)
	for i := range ids {
		ids[i] = fmt.Sprintf("form-%d.pdf", i+1)
	}
	batch, err := o.Extract(context.Background(), sourcesFor(ids...))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if m.RequestCount() != 8 {
		t.Errorf("RequestCount = %d, want 8", m.RequestCount())
	}
	if m.MaxInFlight() > 2 {
		t.Errorf("MaxInFlight = %d, want at most 2", m.MaxInFlight())
	}
	for i, ex := range batch.Extractions {
		if ex.Source.ID != ids[i] {
			t.Errorf("extraction %d = %s, want %s", i, ex.Source.ID, ids[i])
		}
	}
}

func TestWorkersCappedByExtractor(t *testing.T) {
	m := newMock()
	m.Concurrency = 1
	o := newOrchestrator(t, Config{Extractor: m, Workers: 4})
	if o.Workers() != 1 {
		t.Errorf("Workers() = %d, want 1", o.Workers())
	}
}

func TestExtractCancelled(t *testing.T) {
	o := newOrchestrator(t, Config{Extractor: newMock()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.Extract(ctx, sourcesFor("a.pdf", "b.pdf")); !errors.Is(err, context.Canceled) {
		t.Errorf("Extract() error = %v, want context.Canceled", err)
	}
}

func TestReconcileRejectsThreshold(t *testing.T) {
	o := newOrchestrator(t, Config{Extractor: newMock()})
	batch, err := o.Extract(context.Background(), sourcesFor("a.pdf"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if _, err := o.Reconcile(batch, loadRoster(t), 1.5); err == nil {
		t.Error("expected error for threshold outside [0,1]")
	}
}

func TestSweep(t *testing.T) {
	want := []float64{0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95}
	if diff := cmp.Diff(want, SweepThresholds()); diff != "" {
		t.Fatalf("SweepThresholds() mismatch (-want +got):\n%s", diff)
	}

	m := newMock()
	o := newOrchestrator(t, Config{Extractor: m})
	batch, err := o.Extract(context.Background(), sourcesFor("a.pdf", "b.pdf", "e.pdf"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	points, err := o.Sweep(batch, loadRoster(t), SweepThresholds())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if m.RequestCount() != 3 {
		t.Errorf("sweep re-extracted: RequestCount = %d", m.RequestCount())
	}

	// "jon smith" vs "jonathan smith" scores about 0.78.
	for _, p := range points {
		wantFuzzy := 0
		if p.Threshold <= 0.75 {
			wantFuzzy = 1
		}
		if p.Fuzzy != wantFuzzy || p.Matched != 1+wantFuzzy || p.Failed != 1 {
			t.Errorf("threshold %.2f: %+v", p.Threshold, p)
		}
		if p.Unmatched != 1-wantFuzzy {
			t.Errorf("threshold %.2f unmatched = %d", p.Threshold, p.Unmatched)
		}
	}
}
