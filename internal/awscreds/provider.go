// Package awscreds implements C2, the credentials provider (spec §4.2):
// caller-supplied provider first, then environment variables, then
// IMDSv2, each wrapped so the coordinator always sees the same Provider
// interface regardless of source.
package awscreds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
)

// maxAge invalidates a cached IMDS credential, per spec §4.2/§3.
const maxAge = 4 * time.Minute

// Credentials is the resolved access key / secret / optional session
// token, expressed as aws.Credentials so internal/sigv4 can hand it
// straight to the AWS SigV4 signer without another conversion.
type Credentials = awssdk.Credentials

// Provider resolves credentials, possibly refreshing them. It mirrors the
// external caller-supplied provider contract (spec §6): "a callable that
// yields {access_key_id, secret_access_key, session_token?} either
// synchronously or asynchronously."
type Provider interface {
	Get(ctx context.Context) (Credentials, error)
}

// ProviderFunc adapts a function to Provider, for callers who supply a
// bare closure instead of an object (spec §6's Provider contract is
// "a callable").
type ProviderFunc func(ctx context.Context) (Credentials, error)

// Get implements Provider.
func (f ProviderFunc) Get(ctx context.Context) (Credentials, error) { return f(ctx) }

// Resolve implements the resolution order in spec §4.2: caller-provided,
// then environment, then IMDS. caller may be nil.
func Resolve(caller Provider) Provider {
	if caller != nil {
		return caller
	}
	if env, ok := newEnvProvider(); ok {
		return env
	}
	return DefaultIMDSCredentials
}

// envProvider reads AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY /
// AWS_SESSION_TOKEN once; it never refreshes, per spec §4.2 rule 2.
type envProvider struct {
	creds Credentials
}

func newEnvProvider() (*envProvider, bool) {
	ak := os.Getenv("AWS_ACCESS_KEY_ID")
	sk := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if ak == "" || sk == "" {
		return nil, false
	}
	return &envProvider{creds: Credentials{
		AccessKeyID:     ak,
		SecretAccessKey: sk,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "EnvironmentVariables",
	}}, true
}

func (p *envProvider) Get(ctx context.Context) (Credentials, error) {
	return p.creds, nil
}

// imdsCredentialsProvider implements spec §4.2 rule 3: obtain a role name
// from IMDS, then that role's credentials document, caching the result
// and invalidating it after maxAge.
type imdsCredentialsProvider struct {
	imds *IMDSClient

	mu       sync.Mutex
	cached   Credentials
	cachedAt time.Time
	hasCache bool
}

// DefaultIMDSCredentials is the process-wide IMDS credentials provider.
var DefaultIMDSCredentials = &imdsCredentialsProvider{imds: DefaultIMDSClient}

// Clear forgets the cached credential, for test isolation.
func (p *imdsCredentialsProvider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasCache = false
	p.cached = Credentials{}
	p.cachedAt = time.Time{}
}

type imdsCredentialsDocument struct {
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	Token           string `json:"Token"`
	Expiration      string `json:"Expiration"`
}

func (p *imdsCredentialsProvider) Get(ctx context.Context) (Credentials, error) {
	p.mu.Lock()
	if p.hasCache && time.Since(p.cachedAt) < maxAge {
		creds := p.cached
		p.mu.Unlock()
		return creds, nil
	}
	p.mu.Unlock()

	roleBody, err := p.imds.Get(ctx, "/latest/meta-data/iam/security-credentials/")
	if err != nil {
		return Credentials{}, fmt.Errorf("awscreds: resolve iam role: %w", err)
	}
	role := firstLine(string(roleBody))
	if role == "" {
		return Credentials{}, errors.New("awscreds: imds returned no iam role")
	}

	credBody, err := p.imds.Get(ctx, "/latest/meta-data/iam/security-credentials/"+role)
	if err != nil {
		return Credentials{}, fmt.Errorf("awscreds: resolve role credentials: %w", err)
	}

	var doc imdsCredentialsDocument
	if err := json.Unmarshal(credBody, &doc); err != nil {
		return Credentials{}, fmt.Errorf("awscreds: parse role credentials: %w", err)
	}

	creds := Credentials{
		AccessKeyID:     doc.AccessKeyID,
		SecretAccessKey: doc.SecretAccessKey,
		SessionToken:    doc.Token,
		Source:          "IMDSv2",
	}
	if doc.Expiration != "" {
		if t, err := time.Parse(time.RFC3339, doc.Expiration); err == nil {
			creds.CanExpire = true
			creds.Expires = t
		}
	}

	p.mu.Lock()
	p.cached = creds
	p.cachedAt = time.Now()
	p.hasCache = true
	p.mu.Unlock()

	return creds, nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			return s[:i]
		}
	}
	return s
}
