package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/widdix/s3-getobject-accelerator"
	"github.com/widdix/s3-getobject-accelerator/internal/config"
	"github.com/widdix/s3-getobject-accelerator/internal/progress"
)

func runMeta(args []string) int {
	fs := flag.NewFlagSet("meta", flag.ExitOnError)

	cfgPath := fs.String("config", "", "Path to a YAML config file")
	bucket := fs.String("bucket", "", "Source bucket (required)")
	object := fs.String("object", "", "Source object key (required)")
	version := fs.String("version", "", "Object version ID")
	partSize := fs.String("part-size", "", "Range size (e.g. 8MB); native-part mode when omitted")
	endpoint := fs.String("endpoint", "", "Override S3 endpoint hostname, for S3-compatible stores")
	endpointPort := fs.String("endpoint-port", "", "Override S3 endpoint port")
	insecure := fs.Bool("insecure", false, "Use plain HTTP instead of HTTPS")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: s3get meta [options]

Probe an S3 object's size and part count without downloading it.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := resolveConfig(*cfgPath, configFromFlags(*bucket, *object, *version, *endpoint, *endpointPort))
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
	if cfg.Bucket == "" || cfg.Object == "" {
		fmt.Fprintln(os.Stderr, "Error: -bucket and -object are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	h, err := accelerator.Download(
		accelerator.Source{Bucket: cfg.Bucket, Key: cfg.Object, Version: cfg.Version},
		accelerator.Options{
			PartSizeBytes:    cfg.PartSize,
			Concurrency:      1,
			EndpointHostname: cfg.EndpointHostname,
			EndpointPort:     cfg.EndpointPort,
			Insecure:         *insecure,
		},
	)
	if err != nil {
		return reportAndExit(err)
	}

	type result struct {
		err error
		m   accelerator.Meta
	}
	resultCh := make(chan result, 1)
	h.Meta(context.Background(), func(err error, m accelerator.Meta) {
		resultCh <- result{err: err, m: m}
	})
	res := <-resultCh
	if res.err != nil {
		return reportAndExit(res.err)
	}

	fmt.Printf("Bucket: %s\n", cfg.Bucket)
	fmt.Printf("Object: %s\n", cfg.Object)
	fmt.Printf("Size:   %s (%d bytes)\n", progress.FormatBytes(res.m.LengthInBytes), res.m.LengthInBytes)
	fmt.Printf("Parts:  %d\n", res.m.Parts)
	h.Abort(nil)
	return ExitSuccess
}

func configFromFlags(bucket, object, version, endpoint, endpointPort string) config.Config {
	return config.Config{
		Bucket:           bucket,
		Object:           object,
		Version:          version,
		EndpointHostname: endpoint,
		EndpointPort:     endpointPort,
	}
}
