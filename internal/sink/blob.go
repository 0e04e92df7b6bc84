package sink

import (
	"context"
	"io"

	"gocloud.dev/blob"
)

// blobSink lands a download directly in a gocloud.dev/blob bucket,
// grounded on the teacher's shardWriter in pkg/sharded/sharded.go
// (bucket.NewWriter(ctx, path, nil)). This is not part of spec §6's
// Handle surface — it's an additional sink implementation for callers
// who construct a Coordinator directly against object storage instead
// of a file or stream.
type blobSink struct {
	writer  *blob.Writer
	aborted bool
}

// NewBlob opens a writer for key in bucket and returns a Sink backed by
// it.
func NewBlob(ctx context.Context, bucket *blob.Bucket, key string) (Sink, error) {
	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	return &blobSink{writer: w}, nil
}

func (s *blobSink) Write(p []byte) (int, error) {
	if s.aborted {
		return 0, io.ErrClosedPipe
	}
	return s.writer.Write(p)
}

// Abort closes the underlying writer; every later Write fails with
// io.ErrClosedPipe. gocloud.dev/blob has no mid-write cancel primitive
// across all providers, so the best this can do is stop writing and
// close; some providers may still commit a partial object, which the
// caller should treat as a known limitation when choosing this sink for
// abortable downloads.
func (s *blobSink) Abort(err error) {
	s.aborted = true
	s.writer.Close()
}

func (s *blobSink) Close() error {
	return s.writer.Close()
}
