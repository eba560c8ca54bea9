package sheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const defaultMaxAttempts = 3

// ErrNoData reports that every candidate range was empty or failed.
var ErrNoData = errors.New("sheets: no data found in any attempted range")

var errMissingSource = errors.New("sheets: source is required")

// FetcherConfig configures the retrying fetcher.
type FetcherConfig struct {
	Source      Source
	Logger      *zap.Logger
	MaxAttempts int
	// BaseDelay is the first retry delay; subsequent delays double.
	BaseDelay time.Duration
	// Sleep overrides the inter-attempt wait, for tests.
	Sleep func(ctx context.Context, d time.Duration)
}

// Fetcher reads a range through the Source with bounded exponential retries,
// trying a small ordered list of candidate ranges and returning the first
// non-empty result.
type Fetcher struct {
	source      Source
	logger      *zap.Logger
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration)
}

// NewFetcher constructs a Fetcher with sane defaults.
func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}
	return &Fetcher{
		source:      cfg.Source,
		logger:      logger,
		maxAttempts: attempts,
		baseDelay:   baseDelay,
		sleep:       sleep,
	}, nil
}

// Fetch tries each candidate range in order and returns the rows of the first
// one that yields data. Every range read is retried per the backoff policy;
// if all ranges are empty or erroring the fetch fails with ErrNoData.
func (f *Fetcher) Fetch(ctx context.Context, spreadsheetID string, ranges []string) ([][]string, error) {
	if len(ranges) == 0 {
		return nil, ErrNoData
	}

	var lastErr error
	for _, readRange := range ranges {
		rows, err := f.readWithRetry(ctx, spreadsheetID, readRange)
		if err != nil {
			lastErr = err
			f.logger.Warn("range read failed",
				zap.String("range", readRange),
				zap.Error(err))
			continue
		}
		if len(rows) > 0 {
			return rows, nil
		}
		f.logger.Debug("range returned no rows", zap.String("range", readRange))
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w (last error: %v)", ErrNoData, lastErr)
	}
	return nil, ErrNoData
}

// readWithRetry performs up to maxAttempts reads, backing off after each
// failure with doubling delays (base, 2x, 4x). The delay schedule comes from
// an exponential backoff with jitter disabled so retry timing stays exact.
func (f *Fetcher) readWithRetry(ctx context.Context, spreadsheetID, readRange string) ([][]string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.baseDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = f.baseDelay << uint(f.maxAttempts)

	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		rows, err := f.source.ReadRange(ctx, spreadsheetID, readRange)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		f.logger.Warn("source read attempt failed",
			zap.String("range", readRange),
			zap.Int("attempt", attempt),
			zap.Error(err))
		f.sleep(ctx, policy.NextBackOff())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
