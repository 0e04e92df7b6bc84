package s3object

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/widdix/s3-getobject-accelerator/internal/awscreds"
	"github.com/widdix/s3-getobject-accelerator/internal/awserrors"
	"github.com/widdix/s3-getobject-accelerator/internal/retry"
	"github.com/widdix/s3-getobject-accelerator/internal/transport"
)

func newGetter(t *testing.T, srv *httptest.Server) *Getter {
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	return &Getter{
		Executor: transport.NewExecutor(nil),
		Hostname: host,
		Port:     port,
		Region:   "eu-west-1",
		Creds: awscreds.ProviderFunc(func(ctx context.Context) (awscreds.Credentials, error) {
			return awscreds.Credentials{AccessKeyID: "AKID", SecretAccessKey: "secret"}, nil
		}),
		Timeouts: transport.DefaultTimeouts(),
		Retry:    retry.DefaultS3Policy(),
		Scheme:   "http",
	}
}

func TestGetRangePartialContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			t.Error("expected signed request")
		}
		w.Header().Set("Content-Range", "bytes 0-4/10")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	g := newGetter(t, srv)
	result, err := g.Get(context.Background(), Source{Bucket: "bucket", Key: "key"}, RangeSpec(0, 4))
	if err != nil {
		t.Fatal(err)
	}
	if string(result.Body) != "hello" {
		t.Fatalf("body = %q", result.Body)
	}
	if result.RangeTotal != 10 {
		t.Fatalf("total = %d, want 10", result.RangeTotal)
	}
}

func TestGetNativePartWithPartsCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("partNumber") != "1" {
			t.Errorf("partNumber = %q, want 1", r.URL.Query().Get("partNumber"))
		}
		w.Header().Set("Content-Range", "bytes 0-99/300")
		w.Header().Set("x-amz-mp-parts-count", "3")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	g := newGetter(t, srv)
	result, err := g.Get(context.Background(), Source{Bucket: "bucket", Key: "key"}, NativeSpec(1))
	if err != nil {
		t.Fatal(err)
	}
	if result.PartsCount != 3 {
		t.Fatalf("parts_count = %d, want 3", result.PartsCount)
	}
}

func TestGetEmptyObjectViaOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newGetter(t, srv)
	result, err := g.Get(context.Background(), Source{Bucket: "bucket", Key: "key"}, NativeSpec(1))
	if err != nil {
		t.Fatal(err)
	}
	if result.RangeTotal != 0 {
		t.Fatalf("total = %d, want 0", result.RangeTotal)
	}
}

func TestGetEmptyObjectViaInvalidRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		w.Write([]byte(`<?xml version="1.0"?><Error><Code>InvalidRange</Code><Message>nope</Message></Error>`))
	}))
	defer srv.Close()

	g := newGetter(t, srv)
	result, err := g.Get(context.Background(), Source{Bucket: "bucket", Key: "key"}, RangeSpec(0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if result.RangeTotal != 0 {
		t.Fatalf("total = %d, want 0", result.RangeTotal)
	}
}

func TestGetStructuredS3Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
	}))
	defer srv.Close()

	g := newGetter(t, srv)
	_, err := g.Get(context.Background(), Source{Bucket: "bucket", Key: "key"}, NativeSpec(1))
	var protoErr *awserrors.S3ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("err = %v, want *awserrors.S3ProtocolError", err)
	}
	if protoErr.Code != "NoSuchKey" || protoErr.StatusCode != http.StatusNotFound {
		t.Fatalf("protoErr = %+v", protoErr)
	}
}

func TestGetUnexpectedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	g := newGetter(t, srv)
	_, err := g.Get(context.Background(), Source{Bucket: "bucket", Key: "key"}, NativeSpec(1))
	var unexpected *awserrors.UnexpectedResponseError
	if !errors.As(err, &unexpected) {
		t.Fatalf("err = %v, want *awserrors.UnexpectedResponseError", err)
	}
}

func TestGetRetriesServerErrorThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Range", "bytes 0-4/5")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	g := newGetter(t, srv)
	g.Retry = retry.Policy{MaxAttempts: 5, MaxDelay: time.Millisecond}
	result, err := g.Get(context.Background(), Source{Bucket: "bucket", Key: "key"}, RangeSpec(0, 4))
	if err != nil {
		t.Fatal(err)
	}
	if string(result.Body) != "hello" {
		t.Fatalf("body = %q", result.Body)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestGetRangeInconsistentIsNonRetriable(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Range", "bytes 10-14/100")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("wrong"))
	}))
	defer srv.Close()

	g := newGetter(t, srv)
	_, err := g.Get(context.Background(), Source{Bucket: "bucket", Key: "key"}, RangeSpec(0, 4))
	if !errors.Is(err, awserrors.ErrRangeInconsistent) {
		t.Fatalf("err = %v, want ErrRangeInconsistent", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (non-retriable)", attempts)
	}
}
