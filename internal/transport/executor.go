// Package transport implements C4, the request executor: it performs one
// HTTP(S) request end to end — resolve, dial, write, read — and collects
// the full response body into a contiguous buffer, under the five
// independent deadlines spec §4.4 names.
//
// There is no connection pooling: every Do call resolves, dials, and
// tears down its own connection, so each of the five timeouts applies
// cleanly to exactly one request. internal/retry and internal/s3object
// sit above this package and are the ones that reuse an Executor across
// attempts.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/widdix/s3-getobject-accelerator/internal/awserrors"
	"github.com/widdix/s3-getobject-accelerator/internal/dnscache"
)

// Request is one C4-level request. Path carries both the path and any
// query string already composed by the caller (internal/s3object).
type Request struct {
	Method string
	// Scheme is "https" (the default, when empty) or "http" for tests
	// against a plaintext server.
	Scheme string
	Host   string
	// Port defaults to 443 for https and 80 for http when empty.
	Port   string
	Path   string
	Header http.Header
	Body   []byte
}

// Response is the fully-buffered result of one request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Executor performs requests against a DNS cache shared across the
// process (spec §4.1: "the cache is process-wide and shared across
// downloads").
type Executor struct {
	dns       *dnscache.Cache
	tlsConfig *tls.Config
}

// NewExecutor returns an Executor resolving through cache. A nil cache
// uses dnscache.Default.
func NewExecutor(cache *dnscache.Cache) *Executor {
	if cache == nil {
		cache = dnscache.Default
	}
	return &Executor{
		dns:       cache,
		tlsConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// Do resolves req.Host, dials, writes the request, and reads the full
// response body, honoring t's deadlines. Exactly one of (*Response, nil)
// or (nil, error) is returned. Cancelling ctx aborts whatever stage is
// in flight and fails with a CancelledError; the overall Request
// deadline firing instead fails with TimeoutError{Kind: TimeoutRequest}.
//
// ctx (the caller's own context) and reqCtx (ctx wrapped with t.Request,
// the same way resolve() wraps its own timeout below it) are kept
// distinct throughout this file so that downstream classification can
// tell the two apart: reqCtx.Done() firing while ctx is still live means
// the Request timeout elapsed, not that the caller cancelled.
func (e *Executor) Do(ctx context.Context, req *Request, t Timeouts) (*Response, error) {
	reqCtx := ctx
	if t.Request > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, t.Request)
		defer cancel()
	}

	conn, err := e.dial(ctx, reqCtx, req, t)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// Cascade reqCtx cancellation (caller abort or the Request timeout
	// above, whichever reaches it first) into whatever blocking
	// read/write is in flight: net.Conn deadlines don't observe ctx on
	// their own.
	done := make(chan struct{})
	var closedForCancel sync.Once
	go func() {
		select {
		case <-reqCtx.Done():
			closedForCancel.Do(func() { conn.Close() })
		case <-done:
		}
	}()
	defer close(done)

	if err := e.write(ctx, reqCtx, conn, req, t); err != nil {
		return nil, err
	}

	resp, err := e.read(ctx, reqCtx, conn, req, t)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// classifyCtx distinguishes a caller-driven cancellation from the
// overall Request deadline firing. reqCtx is derived from ctx via
// t.Request, so reqCtx.Err() alone can't tell the two apart; checking
// ctx first gives caller cancellation priority when both have fired.
func classifyCtx(ctx, reqCtx context.Context) error {
	if ctx.Err() != nil {
		return awserrors.NewCancelledError(ctx.Err())
	}
	if reqCtx.Err() != nil {
		return &awserrors.TimeoutError{Kind: awserrors.TimeoutRequest}
	}
	return nil
}

func (e *Executor) dial(ctx, reqCtx context.Context, req *Request, t Timeouts) (net.Conn, error) {
	scheme := req.Scheme
	if scheme == "" {
		scheme = "https"
	}
	port := req.Port
	if port == "" {
		if scheme == "http" {
			port = "80"
		} else {
			port = "443"
		}
	}

	ip, err := e.resolve(ctx, reqCtx, req.Host, t.Resolve)
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(ip.String(), port)

	dialCtx := reqCtx
	if t.Connection > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(reqCtx, t.Connection)
		defer cancel()
	}

	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, classifyConnectError(ctx, reqCtx, err)
	}

	if scheme == "http" {
		return rawConn, nil
	}

	cfg := e.tlsConfig.Clone()
	cfg.ServerName = req.Host
	tlsConn := tls.Client(rawConn, cfg)
	if t.Connection > 0 {
		if err := rawConn.SetDeadline(time.Now().Add(t.Connection)); err != nil {
			rawConn.Close()
			return nil, &awserrors.NetworkError{Code: awserrors.ErrCodeUnknown, Cause: err}
		}
	}
	if err := tlsConn.HandshakeContext(dialCtx); err != nil {
		rawConn.Close()
		return nil, classifyConnectError(ctx, reqCtx, err)
	}
	rawConn.SetDeadline(time.Time{})
	return tlsConn, nil
}

func (e *Executor) resolve(ctx, reqCtx context.Context, host string, timeout time.Duration) (net.IP, error) {
	resolveCtx := reqCtx
	var cancel context.CancelFunc
	if timeout > 0 {
		resolveCtx, cancel = context.WithTimeout(reqCtx, timeout)
		defer cancel()
	}

	ip, err := e.dns.Lookup(resolveCtx, host, dnscache.IPv4)
	if err != nil {
		if cerr := classifyCtx(ctx, reqCtx); cerr != nil {
			return nil, cerr
		}
		if resolveCtx.Err() == context.DeadlineExceeded {
			return nil, &awserrors.TimeoutError{Kind: awserrors.TimeoutResolve}
		}
		return nil, err
	}
	return ip, nil
}

func (e *Executor) write(ctx, reqCtx context.Context, conn net.Conn, req *Request, t Timeouts) error {
	if t.Write > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(t.Write)); err != nil {
			return &awserrors.NetworkError{Code: awserrors.ErrCodeUnknown, Cause: err}
		}
		defer conn.SetWriteDeadline(time.Time{})
	}

	scheme := req.Scheme
	if scheme == "" {
		scheme = "https"
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequest(req.Method, scheme+"://"+req.Host+req.Path, body)
	if err != nil {
		return err
	}
	httpReq.Host = req.Host
	if req.Header != nil {
		httpReq.Header = req.Header.Clone()
	}
	if len(req.Body) > 0 {
		httpReq.ContentLength = int64(len(req.Body))
	}

	if err := httpReq.Write(conn); err != nil {
		if cerr := classifyCtx(ctx, reqCtx); cerr != nil {
			return cerr
		}
		if isTimeout(err) {
			return &awserrors.TimeoutError{Kind: awserrors.TimeoutWrite}
		}
		return classifyIOError(err)
	}
	return nil
}

func (e *Executor) read(ctx, reqCtx context.Context, conn net.Conn, req *Request, t Timeouts) (*Response, error) {
	br := bufio.NewReader(conn)

	if t.Read > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(t.Read)); err != nil {
			return nil, &awserrors.NetworkError{Code: awserrors.ErrCodeUnknown, Cause: err}
		}
	}

	resp, err := http.ReadResponse(br, &http.Request{Method: req.Method})
	if err != nil {
		if cerr := classifyCtx(ctx, reqCtx); cerr != nil {
			return nil, cerr
		}
		if isTimeout(err) {
			return nil, &awserrors.TimeoutError{Kind: awserrors.TimeoutRead}
		}
		return nil, classifyIOError(err)
	}
	defer resp.Body.Close()

	body, err := e.readBody(ctx, reqCtx, conn, resp, t)
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// readBody reads resp.Body to completion, pre-allocating from
// Content-Length when known, and enforcing both the overall read
// deadline and the per-read data deadline, whichever is tighter
// (spec §4.4: "read" bounds the whole body, "data" bounds the gap
// between consecutive bytes).
func (e *Executor) readBody(ctx, reqCtx context.Context, conn net.Conn, resp *http.Response, t Timeouts) ([]byte, error) {
	var overall time.Time
	if t.Read > 0 {
		overall = time.Now().Add(t.Read)
	}

	var buf []byte
	if resp.ContentLength > 0 {
		buf = make([]byte, 0, resp.ContentLength)
	}

	chunk := make([]byte, 32*1024)
	for {
		deadline := overall
		if t.Data > 0 {
			d := time.Now().Add(t.Data)
			if deadline.IsZero() || d.Before(deadline) {
				deadline = d
			}
		}
		if !deadline.IsZero() {
			if err := conn.SetReadDeadline(deadline); err != nil {
				return nil, &awserrors.NetworkError{Code: awserrors.ErrCodeUnknown, Cause: err}
			}
		}

		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			if cerr := classifyCtx(ctx, reqCtx); cerr != nil {
				return nil, cerr
			}
			if isTimeout(err) {
				kind := awserrors.TimeoutData
				if !overall.IsZero() && !time.Now().Before(overall) {
					kind = awserrors.TimeoutRead
				}
				return nil, &awserrors.TimeoutError{Kind: kind}
			}
			return nil, classifyIOError(err)
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func classifyConnectError(ctx, reqCtx context.Context, err error) error {
	if cerr := classifyCtx(ctx, reqCtx); cerr != nil {
		return cerr
	}
	if isTimeout(err) {
		return &awserrors.TimeoutError{Kind: awserrors.TimeoutConnection}
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return &awserrors.NetworkError{Code: awserrors.ErrCodeConnectionRefused, Cause: err}
	case errors.Is(err, syscall.EHOSTUNREACH):
		return &awserrors.NetworkError{Code: awserrors.ErrCodeHostUnreachable, Cause: err}
	case errors.Is(err, syscall.ECONNRESET):
		return &awserrors.NetworkError{Code: awserrors.ErrCodeConnectionReset, Cause: err}
	default:
		return &awserrors.NetworkError{Code: awserrors.ErrCodeUnknown, Cause: err}
	}
}

func classifyIOError(err error) error {
	switch {
	case errors.Is(err, syscall.ECONNRESET):
		return &awserrors.NetworkError{Code: awserrors.ErrCodeConnectionReset, Cause: err}
	case errors.Is(err, syscall.EPIPE):
		return &awserrors.NetworkError{Code: awserrors.ErrCodeBrokenPipe, Cause: err}
	default:
		return &awserrors.NetworkError{Code: awserrors.ErrCodeUnknown, Cause: err}
	}
}
