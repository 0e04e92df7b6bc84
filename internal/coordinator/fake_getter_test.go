package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/widdix/s3-getobject-accelerator/internal/awserrors"
	"github.com/widdix/s3-getobject-accelerator/internal/retry"
	"github.com/widdix/s3-getobject-accelerator/internal/s3object"
)

// fakePartConfig describes how a fake GET for one part behaves: errs
// are returned in order for the first len(errs) attempts, delay is
// applied before every attempt (success or failure), and body is
// returned once errs are exhausted.
type fakePartConfig struct {
	body  []byte
	delay time.Duration
	errs  []error
}

// fakeGetter stands in for *s3object.Getter in coordinator tests,
// letting tests control per-part latency, failure sequences, and the
// probe's reported object size / parts count without a real server.
// Like the real Getter, one Get call retries a retriable error up to
// retry.DefaultS3Policy().MaxAttempts attempts in all (without backoff
// waits) and returns a non-retriable error at once.
type fakeGetter struct {
	partSize   int64
	objectSize int64
	partsCount int
	parts      map[int]*fakePartConfig

	mu       sync.Mutex
	attempts map[int]int

	orderMu  sync.Mutex
	order    []int
	curFlt   int
	peakFlt  int
}

func newFakeGetter(partSize, objectSize int64, partsCount int, parts map[int]*fakePartConfig) *fakeGetter {
	return &fakeGetter{
		partSize:   partSize,
		objectSize: objectSize,
		partsCount: partsCount,
		parts:      parts,
		attempts:   make(map[int]int),
	}
}

func (g *fakeGetter) partNoFromSpec(spec s3object.PartSpec) int {
	if spec.Range != nil {
		if g.partSize == 0 {
			return 1
		}
		return int(spec.Range.Start/g.partSize) + 1
	}
	return spec.PartNumber
}

func (g *fakeGetter) Get(ctx context.Context, src s3object.Source, spec s3object.PartSpec) (*s3object.Result, error) {
	n := g.partNoFromSpec(spec)

	g.orderMu.Lock()
	g.curFlt++
	if g.curFlt > g.peakFlt {
		g.peakFlt = g.curFlt
	}
	g.orderMu.Unlock()
	defer func() {
		g.orderMu.Lock()
		g.curFlt--
		g.orderMu.Unlock()
	}()

	cfg := g.parts[n]

	var lastErr error
	for try := 1; try <= retry.DefaultS3Policy().MaxAttempts; try++ {
		g.mu.Lock()
		g.attempts[n]++
		attempt := g.attempts[n]
		g.mu.Unlock()

		if cfg.delay > 0 {
			select {
			case <-time.After(cfg.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if attempt > len(cfg.errs) {
			lastErr = nil
			break
		}
		lastErr = cfg.errs[attempt-1]
		if !fakeRetriable(lastErr) {
			return nil, lastErr
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	g.orderMu.Lock()
	g.order = append(g.order, n)
	g.orderMu.Unlock()

	return &s3object.Result{
		Body:          cfg.body,
		ContentLength: int64(len(cfg.body)),
		RangeTotal:    g.objectSize,
		PartsCount:    g.partsCount,
	}, nil
}

// fakeRetriable applies the real Getter's retry rule to a canned error:
// a retriable error class, or an unexpected response with status 429/5xx.
func fakeRetriable(err error) bool {
	var unexpected *awserrors.UnexpectedResponseError
	if errors.As(err, &unexpected) {
		return awserrors.IsRetriableStatus(unexpected.StatusCode)
	}
	return awserrors.IsRetriable(err)
}

func (g *fakeGetter) downloadedOrder() []int {
	g.orderMu.Lock()
	defer g.orderMu.Unlock()
	return append([]int(nil), g.order...)
}

func (g *fakeGetter) peakInFlight() int {
	g.orderMu.Lock()
	defer g.orderMu.Unlock()
	return g.peakFlt
}
