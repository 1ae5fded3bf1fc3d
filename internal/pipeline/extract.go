package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/rollcall/internal/ingest"
	"github.com/jackzampolin/rollcall/internal/providers"
)

// Extraction is the outcome of extracting one source. Exactly one of
// Result and Err is set.
type Extraction struct {
	Source   ingest.Source
	Result   *providers.ExtractionResult
	Err      error
	Attempts int
	Duration time.Duration
}

// Batch holds the extractions of one run in input order.
type Batch struct {
	RunID       string
	Provider    string
	Extractions []Extraction
}

// Extract runs the extractor over every source. A dispatcher goroutine owns
// the rate limiter and hands document indexes to a bounded set of workers,
// so results land at their input position regardless of completion order.
// The returned error is non-nil only when ctx is cancelled.
func (o *Orchestrator) Extract(ctx context.Context, sources []ingest.Source) (*Batch, error) {
	batch := &Batch{
		RunID:       uuid.New().String(),
		Provider:    o.extractor.Name(),
		Extractions: make([]Extraction, len(sources)),
	}
	logger := o.logger.With("run", batch.RunID)
	logger.Info("extracting documents", "documents", len(sources), "workers", o.workers)

	work := make(chan int, o.workers)
	g, gctx := errgroup.WithContext(ctx)

	// Dispatcher: wait for a token, then hand the document to a worker.
	g.Go(func() error {
		defer close(work)
		for i := range sources {
			if err := o.limiter.Wait(gctx); err != nil {
				return err
			}
			select {
			case work <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < o.workers; w++ {
		g.Go(func() error {
			for i := range work {
				batch.Extractions[i] = o.extractOne(gctx, logger, sources[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extraction cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extraction cancelled: %w", err)
	}
	return batch, nil
}

// extractOne loads and extracts a single document. Rate-limit rejections
// are retried up to the extractor's MaxRetries (at least once), waiting for
// Retry-After when the provider sent one. Every failure is wrapped in a
// *providers.ExtractionError.
func (o *Orchestrator) extractOne(ctx context.Context, logger *slog.Logger, src ingest.Source) Extraction {
	start := time.Now()
	ex := Extraction{Source: src}
	fail := func(err error) Extraction {
		ex.Err = &providers.ExtractionError{Document: src.ID, Provider: o.extractor.Name(), Err: err}
		ex.Duration = time.Since(start)
		logger.Warn("extraction failed", "document", src.ID, "attempts", ex.Attempts, "error", err)
		return ex
	}

	doc, err := o.loader.Load(ctx, src)
	if err != nil {
		return fail(err)
	}

	retries := o.extractor.MaxRetries()
	if retries < 1 {
		retries = 1
	}

	err = retry.Do(
		func() error {
			ex.Attempts++
			// The dispatcher paid for the first attempt.
			if ex.Attempts > 1 {
				if err := o.limiter.Wait(ctx); err != nil {
					return err
				}
			}

			callCtx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()

			result, err := o.extractor.Extract(callCtx, doc)
			if err != nil {
				if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
					return fmt.Errorf("timed out after %s: %w", o.timeout, err)
				}
				return err
			}
			if result == nil {
				return fmt.Errorf("empty response: %w", providers.ErrNoDetections)
			}
			ex.Result = result
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(retries+1)),
		retry.RetryIf(providers.IsRateLimitError),
		retry.DelayType(o.retryDelay),
		retry.OnRetry(func(n uint, err error) {
			retryAfter := providers.RetryAfter(err)
			o.limiter.Record429(retryAfter)
			logger.Warn("rate limited", "document", src.ID, "attempt", n+1, "retry_after", retryAfter)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fail(err)
	}

	ex.Duration = time.Since(start)
	logger.Debug("document extracted",
		"document", src.ID,
		"detections", len(ex.Result.Detections),
		"attempts", ex.Attempts,
		"duration", ex.Duration.Round(time.Millisecond),
	)
	return ex
}

// retryDelay honors the provider's Retry-After hint and otherwise falls
// back to the extractor's base delay.
func (o *Orchestrator) retryDelay(_ uint, err error, _ *retry.Config) time.Duration {
	if d := providers.RetryAfter(err); d > 0 {
		return d
	}
	return o.extractor.RetryDelayBase()
}
