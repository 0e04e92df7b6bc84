// Package accelerator is the library surface spec §6 names: download()
// returning a Handle, and the options/source structs that configure one
// S3 GetObject download driven by the coordinator underneath.
package accelerator

import (
	"context"
	"io"
	"time"

	"github.com/widdix/s3-getobject-accelerator/internal/awscreds"
	"github.com/widdix/s3-getobject-accelerator/internal/awserrors"
	"github.com/widdix/s3-getobject-accelerator/internal/awsregion"
	"github.com/widdix/s3-getobject-accelerator/internal/coordinator"
	"github.com/widdix/s3-getobject-accelerator/internal/dnscache"
	"github.com/widdix/s3-getobject-accelerator/internal/events"
	"github.com/widdix/s3-getobject-accelerator/internal/retry"
	"github.com/widdix/s3-getobject-accelerator/internal/s3object"
	"github.com/widdix/s3-getobject-accelerator/internal/transport"

	"gocloud.dev/blob"
)

// Source identifies the S3 object to download (spec §6 source).
type Source struct {
	Bucket  string
	Key     string
	Version string
}

// Options configures one download (spec §6 options), Go-cased and with
// every *_ms field as a time.Duration. A zero duration selects that
// timeout's default (listed beside each field); no value disables a
// timeout.
type Options struct {
	// PartSizeBytes enables range mode when > 0. Zero (the default)
	// means native-part mode. Negative is rejected (ConfigurationError).
	PartSizeBytes int64
	// Concurrency must be >= 1; rejected otherwise.
	Concurrency int

	RequestTimeout    time.Duration // default 300s
	ResolveTimeout    time.Duration // default 3s
	ConnectionTimeout time.Duration // default 3s
	ReadTimeout       time.Duration // default 300s
	DataTimeout       time.Duration // default 3s
	WriteTimeout      time.Duration // default 300s

	// EndpointHostname overrides the region-derived path-style hostname.
	EndpointHostname string
	// EndpointPort overrides the scheme's default port (443/80), for a
	// local S3-compatible test server listening on a non-standard port.
	EndpointPort string
	// CredentialsProvider overrides the env/IMDS resolution order when set.
	CredentialsProvider awscreds.Provider
	// DNSCache overrides the process-wide resolver cache, mainly for tests.
	DNSCache *dnscache.Cache
	// Insecure sends plain HTTP instead of HTTPS. Only meaningful together
	// with EndpointHostname, for pointing the accelerator at a local
	// S3-compatible test server (e.g. MinIO) that terminates TLS nowhere.
	Insecure bool
}

// Meta is the probed object metadata (spec §6 meta callback payload).
type Meta struct {
	LengthInBytes int64
	Parts         int
}

// Handle is the caller-facing surface of one download (spec §6 Handle).
type Handle interface {
	Meta(ctx context.Context, cb func(error, Meta))
	ReadStream() io.ReadCloser
	File(ctx context.Context, path string, cb func(error))
	// Blob is a supplement to spec §6: it lands the download directly in
	// a gocloud.dev/blob bucket instead of a local file or stream.
	Blob(ctx context.Context, bucket *blob.Bucket, key string, cb func(error))
	Abort(err error)
	PartsDownloading() int
	On(event events.Name, fn events.Listener)
	Once(event events.Name, fn events.Listener)
	Off(event events.Name, fn events.Listener)
}

// Download validates opts, wires C1-C6 into a C6 partGetter, and starts
// the C7 coordinator, returning its Handle. Configuration errors
// (a negative PartSizeBytes, concurrency < 1) surface synchronously
// here; a PartSizeBytes of zero selects native-part mode.
func Download(source Source, opts Options) (Handle, error) {
	if opts.PartSizeBytes < 0 {
		return nil, &awserrors.ConfigurationError{Field: "PartSizeBytes", Reason: "must be > 0 or 0 for native-part mode"}
	}
	if opts.Concurrency < 1 {
		return nil, &awserrors.ConfigurationError{Field: "Concurrency", Reason: "must be >= 1"}
	}

	timeouts := transport.Timeouts{
		Request:    orDefault(opts.RequestTimeout, 300*time.Second),
		Resolve:    orDefault(opts.ResolveTimeout, 3*time.Second),
		Connection: orDefault(opts.ConnectionTimeout, 3*time.Second),
		Read:       orDefault(opts.ReadTimeout, 300*time.Second),
		Data:       orDefault(opts.DataTimeout, 3*time.Second),
		Write:      orDefault(opts.WriteTimeout, 300*time.Second),
	}

	cache := opts.DNSCache
	if cache == nil {
		cache = dnscache.Default
	}

	region, err := awsregion.Default.Region(context.Background())
	if err != nil {
		return nil, err
	}
	hostname := opts.EndpointHostname
	if hostname == "" {
		hostname = awsregion.Hostname(region)
	}

	scheme := "https"
	if opts.Insecure {
		scheme = "http"
	}

	getter := &s3object.Getter{
		Executor: transport.NewExecutor(cache),
		Hostname: hostname,
		Port:     opts.EndpointPort,
		Region:   region,
		Creds:    awscreds.Resolve(opts.CredentialsProvider),
		Timeouts: timeouts,
		Retry:    retry.DefaultS3Policy(),
		Scheme:   scheme,
	}

	c := coordinator.New(
		s3object.Source{Bucket: source.Bucket, Key: source.Key, Version: source.Version},
		coordinator.Options{PartSizeBytes: opts.PartSizeBytes, Concurrency: opts.Concurrency, Timeouts: timeouts},
		getter,
	)
	return &handle{c: c}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}

// handle adapts *coordinator.Coordinator to the public Handle, adding
// ctx-awareness to Meta/File: a caller-cancelled ctx aborts the download,
// the same way an expired deadline on any other blocking call in this
// codebase does.
type handle struct {
	c *coordinator.Coordinator
}

func (h *handle) Meta(ctx context.Context, cb func(error, Meta)) {
	watchCtx(ctx, h.c)
	h.c.Meta(func(err error, m *coordinator.Meta) {
		if err != nil {
			cb(err, Meta{})
			return
		}
		cb(nil, Meta{LengthInBytes: m.Length, Parts: m.Parts})
	})
}

func (h *handle) ReadStream() io.ReadCloser { return h.c.ReadStream() }

func (h *handle) File(ctx context.Context, path string, cb func(error)) {
	watchCtx(ctx, h.c)
	h.c.File(path, cb)
}

func (h *handle) Blob(ctx context.Context, bucket *blob.Bucket, key string, cb func(error)) {
	watchCtx(ctx, h.c)
	h.c.Blob(ctx, bucket, key, cb)
}

func (h *handle) Abort(err error)       { h.c.Abort(err) }
func (h *handle) PartsDownloading() int { return h.c.PartsDownloading() }

func (h *handle) On(event events.Name, fn events.Listener)   { h.c.On(event, fn) }
func (h *handle) Once(event events.Name, fn events.Listener) { h.c.Once(event, fn) }
func (h *handle) Off(event events.Name, fn events.Listener)  { h.c.Off(event, fn) }

// watchCtx aborts c when ctx is cancelled before the download reaches a
// terminal state. No-op for context.Background()/nil, whose Done channel
// never fires.
func watchCtx(ctx context.Context, c *coordinator.Coordinator) {
	if ctx == nil || ctx.Done() == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			c.Abort(ctx.Err())
		case <-c.Done():
		}
	}()
}
