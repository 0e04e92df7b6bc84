// Package dnscache implements the process-wide DNS record cache C1
// describes (spec §4.1): a per-(family, hostname) FIFO of records with a
// clamped TTL, consumed round-robin so repeat lookups spread load across
// the addresses a name resolves to.
//
// The cache is shared by every download in the process, mirroring the
// teacher's stance on process-global state (spec §9): lazily initialized,
// mutex-protected, and clearable for tests via Clear.
package dnscache

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/widdix/s3-getobject-accelerator/internal/awserrors"
)

// Family selects which address family a lookup prefers.
type Family int

const (
	// IPv4 is the default family and the one every caller in this module
	// asks for. Lookup returns only addresses of the requested family.
	IPv4 Family = iota
	IPv6
)

// Record is one resolved address with the wall-clock time it stops being
// usable.
type Record struct {
	Address   net.IP
	Family    Family
	ExpiresAt time.Time
}

const (
	// capacity bounds the FIFO per (family, hostname) key, per spec §3.
	capacity = 1000
	// minTTL and maxTTL clamp whatever the resolver reports (spec §4.1
	// rule 3 and §9's rationale: the floor protects against flapping
	// authoritative answers, the ceiling bounds failover time).
	minTTL = 5 * time.Second
	maxTTL = 30 * time.Second
	// entryTTL is the record TTL used when the underlying resolver gives
	// no lifetime information of its own, per spec §3.
	entryTTL = 30 * time.Second
)

// resolverFunc looks up all addresses for host. It is a seam for tests;
// production code uses net.DefaultResolver.LookupIPAddr through
// lookupSystem.
type resolverFunc func(ctx context.Context, host string) ([]net.IP, error)

// Cache is a process-wide DNS record cache. The zero value is usable.
type Cache struct {
	mu       sync.Mutex
	records  map[key][]Record
	resolve  resolverFunc
	initOnce sync.Once
}

type key struct {
	family Family
	host   string
}

// Default is the process-wide cache instance C4 consults for every
// request, matching spec §4.1's "the cache is process-wide and shared
// across downloads."
var Default = &Cache{}

func (c *Cache) ensureResolver() {
	c.initOnce.Do(func() {
		if c.resolve == nil {
			c.resolve = lookupSystem
		}
	})
}

func lookupSystem(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

// SetResolver overrides the resolution function, for tests. Passing nil
// restores the system resolver.
func (c *Cache) SetResolver(fn resolverFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolve = fn
}

// Clear empties every cached record. Exposed for test isolation, per
// spec §9's "process-global caches ... explicit clear_cache() for tests."
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
}

// Lookup returns one address for host, popping the front of that
// hostname's FIFO if it holds an unexpired record, otherwise resolving
// fresh records and caching everything beyond the first for subsequent
// calls (spec §4.1 rules 1-2). Cancelling ctx aborts an in-flight resolve
// (rule 4).
func (c *Cache) Lookup(ctx context.Context, host string, family Family) (net.IP, error) {
	c.ensureResolver()
	k := key{family: family, host: host}

	for {
		c.mu.Lock()
		queue := c.records[k]
		if len(queue) > 0 {
			rec := queue[0]
			c.records[k] = queue[1:]
			c.mu.Unlock()
			if time.Now().Before(rec.ExpiresAt) {
				return rec.Address, nil
			}
			continue
		}
		c.mu.Unlock()
		break
	}

	ips, err := c.resolve(ctx, host)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &awserrors.NetworkError{Code: awserrors.ErrCodeNameNotFound, Cause: err}
	}
	matching := make([]net.IP, 0, len(ips))
	for _, ip := range ips {
		if (ip.To4() != nil) == (family == IPv4) {
			matching = append(matching, ip)
		}
	}
	ips = matching
	if len(ips) == 0 {
		return nil, &awserrors.NetworkError{Code: awserrors.ErrCodeNoRecords}
	}

	ttl := clampTTL(entryTTL)
	expires := time.Now().Add(ttl)

	recs := make([]Record, len(ips))
	for i, ip := range ips {
		recs[i] = Record{Address: ip, Family: family, ExpiresAt: expires}
	}

	first := recs[0]
	rest := recs[1:]

	if len(rest) > 0 {
		c.mu.Lock()
		if c.records == nil {
			c.records = make(map[key][]Record)
		}
		queue := append(c.records[k], rest...)
		if len(queue) > capacity {
			queue = queue[len(queue)-capacity:]
		}
		c.records[k] = queue
		c.mu.Unlock()
	}

	return first.Address, nil
}

func clampTTL(ttl time.Duration) time.Duration {
	if ttl < minTTL {
		return minTTL
	}
	if ttl > maxTTL {
		return maxTTL
	}
	return ttl
}
