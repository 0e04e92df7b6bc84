package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/widdix/s3-getobject-accelerator/internal/awserrors"
)

func testRequest(t *testing.T, srv *httptest.Server, path string) *Request {
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	return &Request{
		Method: http.MethodGet,
		Scheme: "http",
		Host:   host,
		Port:   port,
		Path:   path,
		Header: http.Header{},
	}
}

func TestDoReadsFullBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	e := NewExecutor(nil)
	resp, err := e.Do(context.Background(), testRequest(t, srv, "/"), DefaultTimeouts())
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != "hello world" {
		t.Fatalf("body = %q", resp.Body)
	}
}

func TestDoPropagatesStatusAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Amz-Request-Id", "abc123")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("partial"))
	}))
	defer srv.Close()

	e := NewExecutor(nil)
	resp, err := e.Do(context.Background(), testRequest(t, srv, "/object"), DefaultTimeouts())
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Amz-Request-Id"); got != "abc123" {
		t.Fatalf("header = %q", got)
	}
}

func TestDoDataTimeoutOnStalledBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "20")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("first-chunk-"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	e := NewExecutor(nil)
	timeouts := DefaultTimeouts()
	timeouts.Data = 30 * time.Millisecond
	timeouts.Read = 0

	_, err := e.Do(context.Background(), testRequest(t, srv, "/"), timeouts)
	if err == nil {
		t.Fatal("expected a data timeout error")
	}
	var timeoutErr *awserrors.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("err = %v, want *awserrors.TimeoutError", err)
	}
	if timeoutErr.Kind != awserrors.TimeoutData {
		t.Fatalf("kind = %v, want %v", timeoutErr.Kind, awserrors.TimeoutData)
	}
}

func TestDoCancelledContextAbortsInFlight(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	e := NewExecutor(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := e.Do(ctx, testRequest(t, srv, "/"), DefaultTimeouts())
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	var cancelErr *awserrors.CancelledError
	if !errors.As(err, &cancelErr) {
		t.Fatalf("err = %v, want *awserrors.CancelledError", err)
	}
}

func TestDoRequestTimeoutDistinctFromCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	e := NewExecutor(nil)
	timeouts := DefaultTimeouts()
	timeouts.Request = 30 * time.Millisecond
	timeouts.Read = 0
	timeouts.Data = 0

	_, err := e.Do(context.Background(), testRequest(t, srv, "/"), timeouts)
	if err == nil {
		t.Fatal("expected a request timeout error")
	}
	var timeoutErr *awserrors.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("err = %v, want *awserrors.TimeoutError", err)
	}
	if timeoutErr.Kind != awserrors.TimeoutRequest {
		t.Fatalf("kind = %v, want %v", timeoutErr.Kind, awserrors.TimeoutRequest)
	}
	var cancelErr *awserrors.CancelledError
	if errors.As(err, &cancelErr) {
		t.Fatal("request timeout must not be classified as CancelledError")
	}
}
