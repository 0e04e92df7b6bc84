// Package dnscache — see cache.go for the record/lookup design (spec §4.1).
//
// # Note on TTL
//
// The stdlib's net.Resolver does not expose the TTL a DNS answer actually
// carried, so every record is stamped with the same nominal TTL before the
// [5s, 30s] clamp is applied (see DESIGN.md's Open Question ledger).
package dnscache
