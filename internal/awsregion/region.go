// Package awsregion implements C3: resolving the AWS region (env or IMDS,
// spec §4.3) and composing the path-style hostname/URI used for every
// request. The region is memoized for the process lifetime, like the
// teacher's other process-global caches.
package awsregion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/widdix/s3-getobject-accelerator/internal/awscreds"
)

// Provider resolves and caches the AWS region.
type Provider struct {
	mu     sync.Mutex
	region string
	imds   *awscreds.IMDSClient
}

// Default is the process-wide region provider.
var Default = &Provider{imds: awscreds.DefaultIMDSClient}

// Clear forgets the cached region, for test isolation.
func (p *Provider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.region = ""
}

// instanceIdentityDocument is the subset of IMDS's instance-identity
// document this package needs.
type instanceIdentityDocument struct {
	Region string `json:"region"`
}

// Region returns AWS_REGION if set, else the region reported by IMDS's
// instance-identity document, caching the first success for the process
// lifetime (spec §4.3).
func (p *Provider) Region(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.region != "" {
		defer p.mu.Unlock()
		return p.region, nil
	}
	p.mu.Unlock()

	if env := os.Getenv("AWS_REGION"); env != "" {
		p.mu.Lock()
		p.region = env
		p.mu.Unlock()
		return env, nil
	}

	body, err := p.imds.Get(ctx, "/latest/dynamic/instance-identity/document")
	if err != nil {
		return "", fmt.Errorf("awsregion: resolve region via imds: %w", err)
	}

	var doc instanceIdentityDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("awsregion: parse instance-identity document: %w", err)
	}
	if doc.Region == "" {
		return "", fmt.Errorf("awsregion: instance-identity document has no region")
	}

	p.mu.Lock()
	p.region = doc.Region
	p.mu.Unlock()
	return doc.Region, nil
}

// Hostname composes the path-style S3 hostname for a region, e.g.
// s3.eu-west-1.amazonaws.com (spec §4.3). Callers may override it entirely
// via the public Options.EndpointHostname.
func Hostname(region string) string {
	return fmt.Sprintf("s3.%s.amazonaws.com", region)
}

// EscapeKey percent-encodes an S3 object key for use in a URI path,
// leaving unreserved characters (A-Z a-z 0-9 _ . ~ -) and '%' untouched
// and additionally forcing '*' to %2A, per spec §4.3. url.PathEscape is
// not used directly because it does not match S3's exact reserved set
// (notably it escapes '%' and leaves $ & + : = @ unescaped).
func EscapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = escapeSegment(seg)
	}
	return strings.Join(segments, "/")
}

func escapeSegment(seg string) string {
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch {
		case c == '*':
			b.WriteString("%2A")
		case isUnreserved(c) || c == '%':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '.' || c == '~' || c == '-':
		return true
	}
	return false
}

// Path composes the request URI path for bucket/key, e.g. /bucket/escaped-key.
func Path(bucket, key string) string {
	return "/" + url.PathEscape(bucket) + "/" + EscapeKey(key)
}
