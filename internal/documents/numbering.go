package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/flowbooks/flowbooks/internal/observability"
	"github.com/flowbooks/flowbooks/internal/shared"
)

// Allocator produces the next unique document number for a business and
// numbering family. Correctness under concurrent callers rests on the store's
// conditional counter update; no external locking is used.
type Allocator struct {
	store    Store
	prefixes *PrefixResolver
	retry    shared.Retry
	logger   *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewAllocator builds an Allocator with the engine's standard retry policy:
// five attempts, 20ms base delay, up to 40ms extra jitter.
func NewAllocator(store Store, prefixes *PrefixResolver, logger *slog.Logger, metrics *observability.Metrics) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		store:    store,
		prefixes: prefixes,
		retry:    shared.NewRetry(5, 20*time.Millisecond, 40*time.Millisecond),
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Allocate returns the next document number, format {prefix}{zero-padded seq}.
// Strategy order: server-side atomic increment, CAS loop with jittered
// retries, highest-existing-number scan, timestamp suffix. The last two trade
// strict sequentiality for availability; the timestamp path is degraded mode
// and is logged as such.
func (a *Allocator) Allocate(ctx context.Context, businessID int64, docType DocType, issueDate time.Time) (string, error) {
	family := FamilyFor(docType)
	prefix := a.prefixes.Prefix(ctx, businessID, family, issueDate)

	// Fast path: one atomic round trip, race-free.
	if seq, err := a.store.NextCounterValue(ctx, businessID, family); err == nil {
		return formatNumber(prefix, seq), nil
	} else if !errors.Is(err, errAtomicUnsupported) {
		a.logger.Warn("atomic counter increment failed, falling back to CAS",
			slog.Int64("business_id", businessID),
			slog.String("family", string(family)),
			slog.Any("error", err))
	}

	seq, casErr := a.allocateCAS(ctx, businessID, family)
	if casErr == nil {
		return formatNumber(prefix, seq), nil
	}
	if ctx.Err() != nil {
		a.metrics.ObserveAllocatorExhausted()
		return "", fmt.Errorf("%w: %v", ErrAllocationExhausted, casErr)
	}
	a.logger.Warn("counter CAS exhausted, scanning existing numbers",
		slog.Int64("business_id", businessID),
		slog.String("family", string(family)),
		slog.Any("error", casErr))

	if number, err := a.allocateFromScan(ctx, businessID, prefix); err == nil {
		return number, nil
	} else if !errors.Is(err, ErrNotFound) {
		a.logger.Warn("number scan failed",
			slog.Int64("business_id", businessID),
			slog.Any("error", err))
	} else {
		// No documents with this prefix yet; start the series.
		return formatNumber(prefix, 1), nil
	}

	// Last resort: timestamp suffix keeps creation alive at the cost of
	// sequence aesthetics. Degraded mode, worth alerting on.
	a.metrics.ObserveAllocatorDegraded()
	number := prefix + a.now().UTC().Format("20060102150405")
	a.logger.Error("degraded document number allocated",
		slog.Int64("business_id", businessID),
		slog.String("family", string(family)),
		slog.String("doc_number", number))
	return number, nil
}

// allocateCAS reads the counter and advances it with a compare-and-swap,
// retrying with jitter when a concurrent allocator wins the race.
func (a *Allocator) allocateCAS(ctx context.Context, businessID int64, family Family) (int64, error) {
	var seq int64
	var allocated bool
	err := a.retry.Do(ctx, func(attempt int) (bool, error) {
		current, err := a.store.GetCounter(ctx, businessID, family)
		if errors.Is(err, ErrNotFound) {
			if initErr := a.store.InitCounter(ctx, businessID, family, 1); initErr == nil {
				seq, allocated = 1, true
				return true, nil
			}
			// Lost the init race; re-read on the next attempt.
			return false, nil
		}
		if err != nil {
			return false, err
		}

		next := current + 1
		affected, err := a.store.ConditionalUpdateCounter(ctx, businessID, family, current, next)
		if err != nil {
			return false, err
		}
		if affected == 0 {
			a.metrics.ObserveAllocatorRetry()
			return false, nil
		}
		seq, allocated = next, true
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	if !allocated {
		return 0, shared.ErrRetryExhausted
	}
	return seq, nil
}

// allocateFromScan derives the next number from the highest existing one.
// Not atomic; used only when the counter is unusable.
func (a *Allocator) allocateFromScan(ctx context.Context, businessID int64, prefix string) (string, error) {
	last, err := a.store.MaxDocNumber(ctx, businessID, prefix)
	if err != nil {
		return "", err
	}
	seq, ok := parseSequence(last, prefix)
	if !ok {
		// The highest entry is a degraded timestamp number; nothing sequential
		// to continue from.
		return "", fmt.Errorf("unparseable document number %q", last)
	}
	return formatNumber(prefix, seq+1), nil
}

// formatNumber pads the sequence to four digits. Past 9999 the padding simply
// grows; uniqueness is unaffected.
func formatNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s%04d", prefix, seq)
}

func parseSequence(docNumber, prefix string) (int64, bool) {
	rest := strings.TrimPrefix(docNumber, prefix)
	if rest == docNumber {
		return 0, false
	}
	seq, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	// Timestamp-suffixed numbers parse as integers too but are far outside
	// any plausible sequence; do not continue a series from one.
	if len(rest) >= 14 {
		return 0, false
	}
	return seq, true
}
