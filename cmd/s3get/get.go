package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/widdix/s3-getobject-accelerator"
	"github.com/widdix/s3-getobject-accelerator/internal/awserrors"
	"github.com/widdix/s3-getobject-accelerator/internal/config"
	"github.com/widdix/s3-getobject-accelerator/internal/events"
	"github.com/widdix/s3-getobject-accelerator/internal/progress"
)

func runGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ExitOnError)

	cfgPath := fs.String("config", "", "Path to a YAML config file")
	bucket := fs.String("bucket", "", "Source bucket (required)")
	object := fs.String("object", "", "Source object key (required)")
	version := fs.String("version", "", "Object version ID")
	output := fs.String("output", "", "Output file path; stdout when omitted")
	concurrency := fs.Int("concurrency", 0, "Number of parallel part fetches")
	partSize := fs.String("part-size", "", "Range size (e.g. 8MB); native-part mode when omitted")
	noProgress := fs.Bool("no-progress", false, "Disable the progress display")
	endpoint := fs.String("endpoint", "", "Override S3 endpoint hostname, for S3-compatible stores")
	endpointPort := fs.String("endpoint-port", "", "Override S3 endpoint port")
	insecure := fs.Bool("insecure", false, "Use plain HTTP instead of HTTPS")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: s3get get [options]

Download an S3 object using parallel range or native-part GETs.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := resolveConfig(*cfgPath, config.Config{
		Bucket:           *bucket,
		Object:           *object,
		Version:          *version,
		Concurrency:      *concurrency,
		EndpointHostname: *endpoint,
		EndpointPort:     *endpointPort,
		Progress:         !*noProgress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if *partSize != "" {
		size, err := progress.ParseBytes(*partSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -part-size: %v\n", err)
			return ExitInvalidArgs
		}
		cfg.PartSize = size
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[s3get] Received interrupt, aborting...")
		cancel()
	}()

	return get(ctx, cfg, *output, *insecure)
}

func get(ctx context.Context, cfg config.Config, output string, insecure bool) int {
	h, err := accelerator.Download(
		accelerator.Source{Bucket: cfg.Bucket, Key: cfg.Object, Version: cfg.Version},
		accelerator.Options{
			PartSizeBytes:     cfg.PartSize,
			Concurrency:       cfg.Concurrency,
			RequestTimeout:    cfg.Timeouts.Request,
			ResolveTimeout:    cfg.Timeouts.Resolve,
			ConnectionTimeout: cfg.Timeouts.Connection,
			ReadTimeout:       cfg.Timeouts.Read,
			DataTimeout:       cfg.Timeouts.Data,
			WriteTimeout:      cfg.Timeouts.Write,
			EndpointHostname:  cfg.EndpointHostname,
			EndpointPort:      cfg.EndpointPort,
			Insecure:          insecure,
		},
	)
	if err != nil {
		return reportAndExit(err)
	}

	var reporter *holder
	if cfg.Progress {
		reporter = attachProgress(h, cfg)
	}

	if output == "" || output == "-" {
		rs := h.ReadStream()
		defer rs.Close()
		if _, err := io.Copy(os.Stdout, rs); err != nil {
			if reporter != nil {
				reporter.Stop()
			}
			return reportAndExit(err)
		}
		if reporter != nil {
			reporter.Stop()
		}
		return ExitSuccess
	}

	doneCh := make(chan error, 1)
	h.File(ctx, output, func(err error) { doneCh <- err })
	err = <-doneCh
	if reporter != nil {
		reporter.Stop()
	}
	if err != nil {
		return reportAndExit(err)
	}
	fmt.Fprintf(os.Stderr, "[s3get] Downloaded to %s\n", output)
	return ExitSuccess
}

// progressHandle is the subset of accelerator.Handle attachProgress needs;
// any accelerator.Handle satisfies it.
type progressHandle interface {
	On(event events.Name, fn events.Listener)
	Once(event events.Name, fn events.Listener)
}

// attachProgress wires the coordinator's object/part events into a
// progress.Reporter, the way the teacher's download command redraws a
// single status line rather than logging every shard. The reporter itself
// is built once the probe resolves the object's size and part count,
// since progress.Options needs both up front to render totals.
func attachProgress(h progressHandle, cfg config.Config) *holder {
	hd := &holder{}
	object := cfg.Bucket + "/" + cfg.Object

	h.Once(events.ObjectDownloading, func(payload any) {
		op, ok := payload.(events.ObjectPayload)
		if !ok {
			return
		}
		partSize := cfg.PartSize
		if partSize == 0 && op.PartsCount > 0 {
			partSize = op.ObjectSize / int64(op.PartsCount)
		}
		r := progress.NewReporter(progress.Options{
			TotalSize:   op.ObjectSize,
			TotalParts:  op.PartsCount,
			Concurrency: cfg.Concurrency,
			Object:      object,
			PartSize:    partSize,
		})
		hd.set(r, partSize)
		r.Start()
	})
	h.On(events.PartDownloading, func(payload any) {
		if r, _ := hd.get(); r != nil {
			r.PartStarted()
		}
	})
	h.On(events.PartDone, func(payload any) {
		if r, size := hd.get(); r != nil {
			r.PartCompleted(size)
		}
	})

	return hd
}

// holder defers reporter construction until the probe completes, since
// every download callback can fire before that happens.
type holder struct {
	mu       sync.Mutex
	r        *progress.Reporter
	partSize int64
}

func (h *holder) set(r *progress.Reporter, partSize int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.r = r
	h.partSize = partSize
}

func (h *holder) get() (*progress.Reporter, int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.r, h.partSize
}

func (h *holder) Stop() {
	r, _ := h.get()
	if r != nil {
		r.Stop()
	}
}

func resolveConfig(path string, override config.Config) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		fileCfg, err := config.LoadFromFile(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	return cfg.Merge(override), nil
}

func reportAndExit(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var s3err *awserrors.S3ProtocolError
	var unexpected *awserrors.UnexpectedResponseError
	var netErr *awserrors.NetworkError
	var timeoutErr *awserrors.TimeoutError
	var cancelErr *awserrors.CancelledError

	switch {
	case errors.As(err, &s3err), errors.As(err, &unexpected):
		return ExitS3Error
	case errors.As(err, &netErr):
		return ExitNetworkError
	case errors.As(err, &timeoutErr):
		return ExitTimeoutError
	case errors.As(err, &cancelErr):
		return ExitAborted
	default:
		return ExitGeneralError
	}
}
