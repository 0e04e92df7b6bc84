package coordinator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/widdix/s3-getobject-accelerator/internal/awserrors"
	"github.com/widdix/s3-getobject-accelerator/internal/events"
	"github.com/widdix/s3-getobject-accelerator/internal/s3object"

	"gocloud.dev/blob/memblob"
)

type eventLog struct {
	mu   sync.Mutex
	byName map[events.Name][]int
}

func newEventLog() *eventLog {
	return &eventLog{byName: make(map[events.Name][]int)}
}

func (l *eventLog) attach(c *Coordinator, names ...events.Name) {
	for _, name := range names {
		name := name
		c.On(name, func(payload any) {
			n := 0
			if p, ok := payload.(events.PartPayload); ok {
				n = p.PartNo
			}
			l.mu.Lock()
			l.byName[name] = append(l.byName[name], n)
			l.mu.Unlock()
		})
	}
}

func (l *eventLog) get(name events.Name) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.byName[name]...)
}

func assertSameMultiset(t *testing.T, got []int, want []int) {
	t.Helper()
	g := append([]int(nil), got...)
	w := append([]int(nil), want...)
	sort.Ints(g)
	sort.Ints(w)
	if len(g) != len(w) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range g {
		if g[i] != w[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func src() s3object.Source {
	return s3object.Source{Bucket: "bucket", Key: "key", Version: "version"}
}

func TestNativeThreeParts(t *testing.T) {
	parts := map[int]*fakePartConfig{
		1: {body: bytes.Repeat([]byte{1}, 8_000_000)},
		2: {body: bytes.Repeat([]byte{2}, 8_000_000)},
		3: {body: bytes.Repeat([]byte{3}, 1_000_000)},
	}
	g := newFakeGetter(0, 17_000_000, 3, parts)
	c := New(src(), Options{Concurrency: 4}, g)

	log := newEventLog()
	log.attach(c, events.PartDownloading, events.PartDone)

	got, err := io.ReadAll(c.ReadStream())
	if err != nil {
		t.Fatal(err)
	}
	<-c.Done()

	if len(got) != 17_000_000 {
		t.Fatalf("len = %d, want 17000000", len(got))
	}
	assertSameMultiset(t, log.get(events.PartDownloading), []int{1, 2, 3})
	assertSameMultiset(t, log.get(events.PartDone), []int{1, 2, 3})
	if peak := g.peakInFlight(); peak > 3 {
		t.Fatalf("peak in-flight = %d, want <= 3", peak)
	}
}

func TestRangeFivePartsStaggeredLatencies(t *testing.T) {
	const partSize = 8_000_000
	bodies := map[int]int{1: partSize, 2: partSize, 3: partSize, 4: partSize, 5: 1_000_000}
	delays := map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
		4: 100 * time.Millisecond,
		5: 300 * time.Millisecond,
	}
	parts := make(map[int]*fakePartConfig)
	for n, size := range bodies {
		parts[n] = &fakePartConfig{body: bytes.Repeat([]byte{byte(n)}, size), delay: delays[n]}
	}
	g := newFakeGetter(partSize, 33_000_000, 0, parts)
	c := New(src(), Options{PartSizeBytes: partSize, Concurrency: 4}, g)

	got, err := io.ReadAll(c.ReadStream())
	if err != nil {
		t.Fatal(err)
	}
	<-c.Done()

	if len(got) != 33_000_000 {
		t.Fatalf("len = %d, want 33000000", len(got))
	}
	if peak := g.peakInFlight(); peak != 4 {
		t.Fatalf("peak in-flight = %d, want 4", peak)
	}
}

func TestRetriableServerErrorRecovers(t *testing.T) {
	const partSize = 8_000_000
	parts := map[int]*fakePartConfig{
		1: {body: bytes.Repeat([]byte{1}, partSize)},
		2: {body: bytes.Repeat([]byte{2}, partSize)},
		3: {
			body: bytes.Repeat([]byte{3}, 8_000_000),
			errs: []error{
				&awserrors.UnexpectedResponseError{StatusCode: 500},
				&awserrors.UnexpectedResponseError{StatusCode: 500},
				&awserrors.UnexpectedResponseError{StatusCode: 500},
				&awserrors.UnexpectedResponseError{StatusCode: 500},
			},
		},
		4: {body: bytes.Repeat([]byte{4}, 8_000_000)},
		5: {body: bytes.Repeat([]byte{5}, 1_000_000)},
	}
	g := newFakeGetter(partSize, 33_000_000, 0, parts)
	c := New(src(), Options{PartSizeBytes: partSize, Concurrency: 4}, g)

	got, err := io.ReadAll(c.ReadStream())
	if err != nil {
		t.Fatal(err)
	}
	<-c.Done()

	if len(got) != 33_000_000 {
		t.Fatalf("len = %d, want 33000000", len(got))
	}
}

func TestExhaustedRetriesTerminatesWithNetworkError(t *testing.T) {
	const partSize = 8_000_000
	connReset := &awserrors.NetworkError{Code: awserrors.ErrCodeConnectionReset}
	parts := map[int]*fakePartConfig{
		1: {body: bytes.Repeat([]byte{1}, partSize)},
		2: {body: bytes.Repeat([]byte{2}, partSize)},
		3: {errs: []error{connReset, connReset, connReset, connReset, connReset}},
		4: {body: bytes.Repeat([]byte{4}, 8_000_000)},
		5: {body: bytes.Repeat([]byte{5}, 1_000_000)},
	}
	g := newFakeGetter(partSize, 33_000_000, 0, parts)
	c := New(src(), Options{PartSizeBytes: partSize, Concurrency: 4}, g)

	r := c.ReadStream()
	_, err := io.ReadAll(r)
	<-c.Done()

	var netErr *awserrors.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want *awserrors.NetworkError", err)
	}
	if netErr.Code != awserrors.ErrCodeConnectionReset {
		t.Fatalf("code = %v, want %v", netErr.Code, awserrors.ErrCodeConnectionReset)
	}
}

func TestStructuredS3ErrorOnProbeSuppressesObjectDownloading(t *testing.T) {
	notFound := &awserrors.S3ProtocolError{Code: "NoSuchKey", Message: "The specified key does not exist.", StatusCode: 404}
	parts := map[int]*fakePartConfig{
		1: {errs: []error{notFound, notFound, notFound, notFound, notFound}},
	}
	g := newFakeGetter(0, 0, 0, parts)
	c := New(src(), Options{Concurrency: 4}, g)

	log := newEventLog()
	log.attach(c, events.PartDownloading)
	var objectDownloadingFired bool
	c.On(events.ObjectDownloading, func(payload any) { objectDownloadingFired = true })

	errCh := make(chan error, 1)
	c.Meta(func(err error, m *Meta) { errCh <- err })
	gotErr := <-errCh
	<-c.Done()

	var protoErr *awserrors.S3ProtocolError
	if !errors.As(gotErr, &protoErr) {
		t.Fatalf("err = %v, want *awserrors.S3ProtocolError", gotErr)
	}
	if protoErr.Code != "NoSuchKey" {
		t.Fatalf("code = %q, want NoSuchKey", protoErr.Code)
	}
	if objectDownloadingFired {
		t.Fatal("object:downloading should not fire on probe failure")
	}
}

func TestAbortMidFlight(t *testing.T) {
	parts := map[int]*fakePartConfig{
		1: {body: make([]byte, 1_000_000), delay: 200 * time.Millisecond},
	}
	g := newFakeGetter(0, 1_000_000, 1, parts)
	c := New(src(), Options{Concurrency: 4}, g)

	var cbErr error
	cbCalled := make(chan struct{})
	c.File("/tmp/should-not-exist-s3accel-test.bin", func(err error) {
		cbErr = err
		close(cbCalled)
	})

	time.Sleep(100 * time.Millisecond)
	c.Abort(nil)

	<-cbCalled
	<-c.Done()

	var cancelErr *awserrors.CancelledError
	if !errors.As(cbErr, &cancelErr) {
		t.Fatalf("err = %v, want *awserrors.CancelledError", cbErr)
	}
	if !errors.Is(cancelErr, awserrors.ErrAborted) {
		t.Fatalf("cause = %v, want ErrAborted", cancelErr)
	}
}

func TestMetaIsMemoizedAcrossCalls(t *testing.T) {
	parts := map[int]*fakePartConfig{
		1: {body: make([]byte, 100)},
	}
	g := newFakeGetter(0, 100, 1, parts)
	c := New(src(), Options{Concurrency: 2}, g)

	var wg sync.WaitGroup
	results := make([]*Meta, 3)
	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		c.Meta(func(err error, m *Meta) {
			defer wg.Done()
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = m
		})
	}
	wg.Wait()

	for _, m := range results {
		if m == nil || m.Length != 100 || m.Parts != 1 {
			t.Fatalf("meta = %+v", m)
		}
	}
	g.mu.Lock()
	attempts := g.attempts[1]
	g.mu.Unlock()
	if attempts != 1 {
		t.Fatalf("probe attempts = %d, want 1 (memoized)", attempts)
	}
}

func TestPartsDownloadingNeverExceedsConcurrency(t *testing.T) {
	const partSize = 1_000_000
	parts := make(map[int]*fakePartConfig)
	for n := 1; n <= 6; n++ {
		size := partSize
		if n == 6 {
			size = 500_000
		}
		parts[n] = &fakePartConfig{body: make([]byte, size), delay: 20 * time.Millisecond}
	}
	g := newFakeGetter(partSize, 5_500_000, 0, parts)
	c := New(src(), Options{PartSizeBytes: partSize, Concurrency: 2}, g)

	if _, err := io.ReadAll(c.ReadStream()); err != nil {
		t.Fatal(err)
	}
	<-c.Done()

	if peak := g.peakInFlight(); peak > 2 {
		t.Fatalf("peak in-flight = %d, want <= 2", peak)
	}
}

func TestBlobDeliversBytesToBucket(t *testing.T) {
	parts := map[int]*fakePartConfig{
		1: {body: bytes.Repeat([]byte{7}, 4_000_000)},
		2: {body: bytes.Repeat([]byte{9}, 2_000_000)},
	}
	g := newFakeGetter(0, 6_000_000, 2, parts)
	c := New(src(), Options{Concurrency: 2}, g)

	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	ctx := context.Background()
	errCh := make(chan error, 1)
	c.Blob(ctx, bucket, "object.bin", func(err error) { errCh <- err })
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}

	got, err := bucket.ReadAll(ctx, "object.bin")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6_000_000 {
		t.Fatalf("len = %d, want 6000000", len(got))
	}
}
