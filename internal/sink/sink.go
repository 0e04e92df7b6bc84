// Package sink implements the two caller-facing destinations spec §6
// names — a byte stream the caller drives, or a file the coordinator
// opens and closes itself — plus an optional gocloud.dev/blob-backed
// sink for callers who want to land a download directly in object
// storage.
package sink

import "io"

// Sink is the coordinator's single write destination (spec §5: "the
// sink is owned exclusively by the coordinator from the first
// read_stream()/file() call until the terminal state"). Write is
// called exactly once per part, strictly in ascending part order, by
// the coordinator's single writer — never concurrently.
type Sink interface {
	io.Writer

	// Abort destroys the sink with err, unblocking any writer waiting
	// on backpressure and delivering err to the caller-facing side
	// (spec §4.7.1 state 5).
	Abort(err error)

	// Close finalizes the sink after the last part has been written
	// (spec §4.7.1 state 4).
	Close() error
}
