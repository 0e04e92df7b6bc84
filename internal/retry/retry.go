// Package retry implements C5, the bounded-retry wrapper around C4
// (internal/transport): classify the outcome of one attempt, and either
// return it or wait out a jittered backoff before trying again.
//
// The backoff shape — exponential with jitter, clamped to a ceiling —
// follows the teacher's Client.backoff in internal/http/client.go; the
// classification rules and the exact formula come from spec §4.5.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/widdix/s3-getobject-accelerator/internal/awserrors"
	"github.com/widdix/s3-getobject-accelerator/internal/transport"
)

// Policy configures one Do call.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Spec §4.5 defaults: 5 for S3 requests, 3 for IMDS requests.
	MaxAttempts int
	// MaxDelay clamps the computed backoff. Default: 20s.
	MaxDelay time.Duration
}

// DefaultS3Policy returns the 5-attempt policy spec §4.5 names for S3
// requests.
func DefaultS3Policy() Policy {
	return Policy{MaxAttempts: 5, MaxDelay: 20 * time.Second}
}

// DefaultIMDSPolicy returns the 3-attempt policy spec §4.5 names for
// IMDS requests.
func DefaultIMDSPolicy() Policy {
	return Policy{MaxAttempts: 3, MaxDelay: 20 * time.Second}
}

// Do runs fn up to p.MaxAttempts times, retrying on the conditions spec
// §4.5 lists: the fixed network-error classes, any of the six C4
// timeout kinds, and HTTP status 429 or 5xx. Non-retriable errors and
// statuses are returned immediately. Between attempts it waits
// uniform(0, 2^(k-1)) seconds (k counted from attempt 2), clamped to
// p.MaxDelay; the wait is interruptible by ctx.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) (*transport.Response, error)) (*transport.Response, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 20 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := wait(ctx, backoff(attempt, maxDelay)); err != nil {
				return nil, err
			}
		}

		resp, err := fn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, awserrors.NewCancelledError(ctx.Err())
			}
			if !awserrors.IsRetriable(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		if awserrors.IsRetriableStatus(resp.StatusCode) {
			lastErr = &awserrors.UnexpectedResponseError{
				StatusCode:  resp.StatusCode,
				ContentType: resp.Header.Get("Content-Type"),
				Body:        resp.Body,
			}
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// backoff computes the attempt-k delay from spec §4.5:
// uniform(0, 2^(k-1)) seconds, clamped to maxDelay.
func backoff(attempt int, maxDelay time.Duration) time.Duration {
	upperSeconds := float64(uint64(1) << uint(attempt-1))
	d := time.Duration(rand.Float64() * upperSeconds * float64(time.Second))
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return awserrors.NewCancelledError(err)
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return awserrors.NewCancelledError(ctx.Err())
	case <-timer.C:
		return nil
	}
}
