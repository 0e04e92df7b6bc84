// Package coordinator implements C7, the download coordinator: the
// public surface of the core, driving the Idle -> Probing -> Streaming
// -> {Done, Aborted} state machine (spec §4.7), the strict in-order
// writer (§4.7.2), and the concurrency-bounded worker pool (§4.7.3).
//
// The reference scheduling model in spec §5 is a single cooperative
// task; this implementation instead uses one goroutine per worker plus
// a handful of short-lived goroutines for the in-order write walk, but
// preserves the invariants §5 actually requires: a single writer to the
// sink, one-time transitions into Aborted/Done, and a consistent
// parts_downloading() snapshot — all guarded by one mutex.
package coordinator

import (
	"context"
	"io"
	"sync"

	"github.com/widdix/s3-getobject-accelerator/internal/awserrors"
	"github.com/widdix/s3-getobject-accelerator/internal/events"
	"github.com/widdix/s3-getobject-accelerator/internal/s3object"
	"github.com/widdix/s3-getobject-accelerator/internal/sink"

	"gocloud.dev/blob"
)

// partGetter is the subset of *s3object.Getter the coordinator needs;
// narrowed to an interface so tests can substitute a fake transport.
type partGetter interface {
	Get(ctx context.Context, src s3object.Source, spec s3object.PartSpec) (*s3object.Result, error)
}

// Coordinator drives one download from construction to a terminal
// state. It is used once: meta may be called any number of times, but
// ReadStream/File is single-shot (spec §4.7: "both call-sites are
// single-shot").
type Coordinator struct {
	source s3object.Source
	opts   Options
	getter partGetter

	emitter *events.Emitter

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state state

	objectSize int64
	partsTotal int

	probeOnce     sync.Once
	probeDone     chan struct{}
	probeDoneOnce sync.Once
	probeResult   *s3object.Result
	probeErr      error

	started bool
	sink    sink.Sink
	fileCb  func(error)

	nextPartNo        int
	lastWrittenPartNo int
	waitingToWrite    map[int][]byte
	inFlight          map[int]context.CancelFunc

	aborted  bool
	abortErr error

	doneCh   chan struct{}
	doneOnce sync.Once
}

// New constructs a Coordinator for source. getter performs the signed,
// retried part GETs (spec C6); opts.Concurrency must be >= 1 and is
// validated by the caller (accelerator.Download), per spec §6's
// ConfigurationError rule.
func New(source s3object.Source, opts Options, getter partGetter) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		source:         source,
		opts:           opts,
		getter:         getter,
		emitter:        &events.Emitter{},
		ctx:            ctx,
		cancel:         cancel,
		state:          stateIdle,
		probeDone:      make(chan struct{}),
		waitingToWrite: make(map[int][]byte),
		inFlight:       make(map[int]context.CancelFunc),
		doneCh:         make(chan struct{}),
	}
}

// On, Once, and Off subscribe to the events §4.7.4 names.
func (c *Coordinator) On(name events.Name, l events.Listener)   { c.emitter.On(name, l) }
func (c *Coordinator) Once(name events.Name, l events.Listener) { c.emitter.Once(name, l) }
func (c *Coordinator) Off(name events.Name, l events.Listener)  { c.emitter.Off(name, l) }

// Meta probes (idempotently, memoized across calls) and reports the
// object's length and part count (spec §4.7 meta(cb)).
func (c *Coordinator) Meta(cb func(error, *Meta)) {
	c.ensureProbe()
	go func() {
		<-c.probeDone
		c.mu.Lock()
		aborted := c.aborted
		abortErr := c.abortErr
		probeErr := c.probeErr
		var m *Meta
		if !aborted && probeErr == nil {
			m = &Meta{Length: c.objectSize, Parts: c.partsTotal}
		}
		c.mu.Unlock()

		if aborted {
			cb(abortErr, nil)
			return
		}
		cb(probeErr, m)
	}()
}

// ReadStream begins delivery to a pipe the caller reads from (spec §6
// read_stream() -> Stream).
func (c *Coordinator) ReadStream() io.ReadCloser {
	s, pr := sink.NewStream()
	c.begin(s, nil)
	return pr
}

// File begins delivery to a file the coordinator opens and closes
// itself (spec §6 file(path, cb(err))).
func (c *Coordinator) File(path string, cb func(error)) {
	s, err := sink.NewFile(path)
	if err != nil {
		cb(err)
		return
	}
	c.begin(s, cb)
}

// Blob begins delivery to key in bucket (supplement to spec §6: a
// gocloud.dev/blob destination alongside the mandated file/stream sinks,
// for callers who want the download landed directly in object storage).
func (c *Coordinator) Blob(ctx context.Context, bucket *blob.Bucket, key string, cb func(error)) {
	s, err := sink.NewBlob(ctx, bucket, key)
	if err != nil {
		cb(err)
		return
	}
	c.begin(s, cb)
}

// Abort is the caller-driven cancellation (spec §6 abort(err?)):
// idempotent, cancels every in-flight GET, discards buffered parts, and
// surfaces a CancelledError wrapping err (or ErrAborted when err is
// nil) through the sink and any outstanding File callback.
func (c *Coordinator) Abort(err error) {
	c.fail(awserrors.NewCancelledError(err))
}

// PartsDownloading reports the current count of in-flight GETs (spec
// §8 invariant 3: never exceeds Concurrency).
func (c *Coordinator) PartsDownloading() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

func (c *Coordinator) ensureProbe() {
	c.probeOnce.Do(func() {
		c.mu.Lock()
		c.state = stateProbing
		c.mu.Unlock()
		go c.runProbe()
	})
}

func (c *Coordinator) firstPartSpec() s3object.PartSpec {
	if c.opts.PartSizeBytes > 0 {
		return s3object.RangeSpec(0, c.opts.PartSizeBytes-1)
	}
	return s3object.NativeSpec(1)
}

// runProbe issues part 1 and, on success, learns object_size and
// parts_count and transitions Probing -> Streaming (spec §4.7.1 state
// 2). On failure it surfaces the error as-is (not wrapped in a
// CancelledError) per spec §7: "the coordinator surfaces any unresolved
// error from a GET via abort(err)".
func (c *Coordinator) runProbe() {
	spec := c.firstPartSpec()
	c.emitter.Emit(events.PartDownloading, events.PartPayload{PartNo: 1})
	result, err := c.getter.Get(c.ctx, c.source, spec)

	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.probeErr = err
		c.mu.Unlock()
		c.signalProbeDone()
		c.fail(err)
		return
	}

	c.objectSize = result.RangeTotal
	if c.opts.PartSizeBytes > 0 {
		c.partsTotal = partsForRange(c.objectSize, c.opts.PartSizeBytes)
	} else {
		pc := result.PartsCount
		if pc < 1 {
			pc = 1
		}
		c.partsTotal = pc
	}
	c.probeResult = result
	c.mu.Unlock()

	c.emitter.Emit(events.PartDownloaded, events.PartPayload{PartNo: 1})
	c.signalProbeDone()
	c.emitter.Emit(events.ObjectDownloading, events.ObjectPayload{
		ObjectSize: c.objectSize,
		PartsCount: c.partsTotal,
	})
}

func (c *Coordinator) signalProbeDone() {
	c.probeDoneOnce.Do(func() { close(c.probeDone) })
}

func (c *Coordinator) begin(s sink.Sink, cb func(error)) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.sink = s
	c.fileCb = cb
	c.mu.Unlock()

	c.ensureProbe()

	go func() {
		<-c.probeDone
		c.mu.Lock()
		aborted := c.aborted
		probeErr := c.probeErr
		c.mu.Unlock()
		if aborted || probeErr != nil {
			return
		}
		c.beginStreaming()
	}()
}

// beginStreaming writes the probe's body as part 1, then either closes
// the sink (single-part object) or starts the worker pool (spec §4.7.1
// state 3).
func (c *Coordinator) beginStreaming() {
	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return
	}
	c.state = stateStreaming
	probeResult := c.probeResult
	partsTotal := c.partsTotal
	c.mu.Unlock()

	c.emitter.Emit(events.PartWriting, events.PartPayload{PartNo: 1})
	if _, err := c.sink.Write(probeResult.Body); err != nil {
		c.fail(err)
		return
	}
	c.emitter.Emit(events.PartDone, events.PartPayload{PartNo: 1})

	c.mu.Lock()
	c.lastWrittenPartNo = 1
	c.mu.Unlock()

	if partsTotal <= 1 {
		c.finish()
		return
	}

	c.mu.Lock()
	c.nextPartNo = 2
	c.mu.Unlock()

	workers := c.opts.Concurrency
	if workers < 1 {
		workers = 1
	}
	if remaining := partsTotal - 1; remaining < workers {
		workers = remaining
	}
	for i := 0; i < workers; i++ {
		go c.worker()
	}
}

// worker pulls the next part number until none remain, downloads it
// via C6, and hands the bytes to the in-order writer (spec §4.7.1
// state 3, §4.7.3).
func (c *Coordinator) worker() {
	for {
		partNo, ok := c.claimNextPart()
		if !ok {
			return
		}

		c.emitter.Emit(events.PartDownloading, events.PartPayload{PartNo: partNo})

		reqCtx, cancel := context.WithCancel(c.ctx)
		c.mu.Lock()
		if c.inFlight == nil {
			c.mu.Unlock()
			cancel()
			return
		}
		c.inFlight[partNo] = cancel
		c.mu.Unlock()

		result, err := c.getter.Get(reqCtx, c.source, c.partSpec(partNo))
		cancel()

		c.mu.Lock()
		if c.inFlight != nil {
			delete(c.inFlight, partNo)
		}
		aborted := c.aborted
		c.mu.Unlock()

		if aborted {
			return
		}
		if err != nil {
			c.fail(err)
			return
		}

		c.emitter.Emit(events.PartDownloaded, events.PartPayload{PartNo: partNo})
		c.deliver(partNo, result.Body)
	}
}

func (c *Coordinator) claimNextPart() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted || c.nextPartNo < 2 || c.nextPartNo > c.partsTotal {
		return 0, false
	}
	n := c.nextPartNo
	c.nextPartNo++
	return n, true
}

// partSpec reads c.objectSize, which is set once in runProbe before
// probeDone closes; every caller of partSpec runs only after receiving
// from probeDone, so the channel close/receive establishes the
// happens-before this unsynchronized read relies on.
func (c *Coordinator) partSpec(n int) s3object.PartSpec {
	if c.opts.PartSizeBytes > 0 {
		start := int64(n-1) * c.opts.PartSizeBytes
		end := start + c.opts.PartSizeBytes - 1
		if last := c.objectSize - 1; end > last {
			end = last
		}
		return s3object.RangeSpec(start, end)
	}
	return s3object.NativeSpec(n)
}

// deliver implements the in-order writer (spec §4.7.2): write part n
// immediately if it's next, otherwise buffer it until its turn.
func (c *Coordinator) deliver(n int, body []byte) {
	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return
	}
	if n != c.lastWrittenPartNo+1 {
		c.waitingToWrite[n] = body
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.writeAndAdvance(n, body)
}

// writeAndAdvance writes part n, advances last_written_part_no, and
// continues the walk into any buffered successor on a fresh goroutine
// so it cannot starve other work (spec §4.7.2: "the walk happens on a
// fresh scheduling tick").
func (c *Coordinator) writeAndAdvance(n int, body []byte) {
	c.emitter.Emit(events.PartWriting, events.PartPayload{PartNo: n})
	if _, err := c.sink.Write(body); err != nil {
		c.fail(err)
		return
	}
	c.emitter.Emit(events.PartDone, events.PartPayload{PartNo: n})

	c.mu.Lock()
	c.lastWrittenPartNo = n
	done := c.lastWrittenPartNo == c.partsTotal
	nextNo := c.lastWrittenPartNo + 1
	next, waiting := c.waitingToWrite[nextNo]
	if waiting {
		delete(c.waitingToWrite, nextNo)
	}
	c.mu.Unlock()

	if done {
		c.finish()
		return
	}
	if waiting {
		go c.writeAndAdvance(nextNo, next)
	}
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	if c.state == stateDone || c.state == stateAborted {
		c.mu.Unlock()
		return
	}
	c.state = stateDone
	s := c.sink
	cb := c.fileCb
	c.mu.Unlock()

	var err error
	if s != nil {
		err = s.Close()
	}
	if cb != nil {
		cb(err)
	}
	c.closeDone()
}

// fail is the shared abort path for both the caller-driven Abort and
// an unresolved internal error surfacing from a GET (spec §7). abortErr
// is delivered to the sink and any outstanding File callback as-is, so
// a Network or Timeout error reaches the caller unwrapped; only the
// public Abort method wraps its argument in a CancelledError.
func (c *Coordinator) fail(abortErr error) {
	c.mu.Lock()
	if c.aborted || c.state == stateDone {
		c.mu.Unlock()
		return
	}
	c.aborted = true
	c.abortErr = abortErr
	c.state = stateAborted
	s := c.sink
	cb := c.fileCb
	inFlight := c.inFlight
	c.inFlight = nil
	c.waitingToWrite = nil
	c.mu.Unlock()

	c.cancel()
	for _, cancelPart := range inFlight {
		cancelPart()
	}
	c.signalProbeDone()

	if s != nil {
		s.Abort(abortErr)
	}
	if cb != nil {
		cb(abortErr)
	}
	c.closeDone()
}

func (c *Coordinator) closeDone() {
	c.doneOnce.Do(func() { close(c.doneCh) })
}

// Done returns a channel closed once the download reaches Done or
// Aborted, for tests and callers that want to block on completion.
func (c *Coordinator) Done() <-chan struct{} {
	return c.doneCh
}
