package coordinator

import "github.com/widdix/s3-getobject-accelerator/internal/transport"

// Options configures one download (spec §6's options, minus the fields
// the accelerator package resolves before constructing a Coordinator:
// endpoint hostname, credentials provider, and connection pool belong
// to the Getter/Executor wiring, not here).
type Options struct {
	// PartSizeBytes puts the download in range mode when > 0. Zero
	// means native-part mode.
	PartSizeBytes int64
	// Concurrency is the maximum number of simultaneously in-flight
	// GETs, the probe counted as one (spec §4.7.3). Must be >= 1.
	Concurrency int
	Timeouts    transport.Timeouts
}

// Meta is the probe result exposed to callers (spec §6 meta callback).
type Meta struct {
	Length int64
	Parts  int
}

func partsForRange(objectSize, partSize int64) int {
	if objectSize <= 0 {
		return 1
	}
	n := objectSize / partSize
	if objectSize%partSize != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return int(n)
}
