// Package s3object implements C6: a single object-part GET against S3,
// signed with SigV4, issued through the retry wrapper and request
// executor, and interpreted into the fixed set of outcomes spec §4.6
// lists (success, empty object, structured S3 error, or an unexpected
// response).
package s3object

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/widdix/s3-getobject-accelerator/internal/awscreds"
	"github.com/widdix/s3-getobject-accelerator/internal/awserrors"
	"github.com/widdix/s3-getobject-accelerator/internal/awsregion"
	"github.com/widdix/s3-getobject-accelerator/internal/retry"
	"github.com/widdix/s3-getobject-accelerator/internal/sigv4"
	"github.com/widdix/s3-getobject-accelerator/internal/transport"
)

// Result is the interpreted outcome of one successful C6 call (spec
// §4.6 rule 5's success/empty-object branches).
type Result struct {
	Body []byte
	// ContentLength is len(Body); kept as a field for callers that find
	// it clearer to read than a slice length.
	ContentLength int64
	// RangeTotal is the object's total size as reported by
	// Content-Range, 0 in the 200/416 empty-object cases, or -1 when the
	// Content-Range total is "*".
	RangeTotal int64
	// PartsCount is x-amz-mp-parts-count, or 0 when absent (native mode
	// only; absent or 1 means a single-part object).
	PartsCount int
}

// Getter issues one object-part GET at a time; it is safe for
// concurrent use by multiple coordinator workers (it owns no per-call
// mutable state of its own — everything mutable is in the shared,
// mutex-protected caches underneath).
type Getter struct {
	Executor *transport.Executor
	Hostname string
	Port     string
	Region   string
	Creds    awscreds.Provider
	Timeouts transport.Timeouts
	Retry    retry.Policy
	// Scheme overrides "https" for tests against a plaintext server.
	Scheme string
}

// Get performs the signed, retried GET for one part of src and
// interprets the response per spec §4.6.
func (g *Getter) Get(ctx context.Context, src Source, spec PartSpec) (*Result, error) {
	resp, err := retry.Do(ctx, g.Retry, func(ctx context.Context) (*transport.Response, error) {
		req, err := g.buildRequest(ctx, src, spec)
		if err != nil {
			return nil, err
		}
		return g.Executor.Do(ctx, req, g.Timeouts)
	})
	if err != nil {
		return nil, err
	}
	return interpret(resp, spec)
}

func (g *Getter) buildRequest(ctx context.Context, src Source, spec PartSpec) (*transport.Request, error) {
	path := awsregion.Path(src.Bucket, src.Key)

	q := url.Values{}
	if src.Version != "" {
		q.Set("versionId", src.Version)
	}
	if spec.Range == nil {
		q.Set("partNumber", strconv.Itoa(spec.PartNumber))
	}
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	scheme := g.Scheme
	if scheme == "" {
		scheme = "https"
	}

	httpReq, err := http.NewRequest(http.MethodGet, scheme+"://"+g.Hostname+path, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Host = g.Hostname
	if spec.Range != nil {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", spec.Range.Start, spec.Range.End))
	}

	creds, err := g.Creds.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := sigv4.Sign(ctx, httpReq, creds, g.Region); err != nil {
		return nil, err
	}

	return &transport.Request{
		Method: http.MethodGet,
		Scheme: scheme,
		Host:   g.Hostname,
		Port:   g.Port,
		Path:   path,
		Header: httpReq.Header,
	}, nil
}

func interpret(resp *transport.Response, spec PartSpec) (*Result, error) {
	switch {
	case resp.StatusCode == http.StatusPartialContent:
		start, end, total, err := parseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return nil, &awserrors.UnexpectedXMLError{StatusCode: resp.StatusCode, Body: resp.Body, Cause: err}
		}
		if spec.Range != nil && (start != spec.Range.Start || end != spec.Range.End) {
			return nil, awserrors.ErrRangeInconsistent
		}
		partsCount := 0
		if v := resp.Header.Get("x-amz-mp-parts-count"); v != "" {
			partsCount, _ = strconv.Atoi(v)
		}
		return &Result{
			Body:          resp.Body,
			ContentLength: int64(len(resp.Body)),
			RangeTotal:    total,
			PartsCount:    partsCount,
		}, nil

	case resp.StatusCode == http.StatusOK && len(resp.Body) == 0:
		return &Result{RangeTotal: 0}, nil

	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		if e, err := parseS3Error(resp.Body); err == nil && e.Code == "InvalidRange" {
			return &Result{RangeTotal: 0}, nil
		}
		return structuredOrUnexpected(resp)

	default:
		return structuredOrUnexpected(resp)
	}
}

func structuredOrUnexpected(resp *transport.Response) (*Result, error) {
	contentType := resp.Header.Get("Content-Type")
	if isXML(contentType) {
		if e, err := parseS3Error(resp.Body); err == nil {
			return nil, &awserrors.S3ProtocolError{
				Code:       e.Code,
				Message:    e.Message,
				StatusCode: resp.StatusCode,
				Body:       resp.Body,
			}
		}
		return nil, &awserrors.UnexpectedXMLError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return nil, &awserrors.UnexpectedResponseError{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        resp.Body,
	}
}

func isXML(contentType string) bool {
	return strings.HasPrefix(contentType, "application/xml") || strings.HasPrefix(contentType, "text/xml")
}
