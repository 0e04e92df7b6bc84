// Package transport — see executor.go for the request executor (C4) and
// timeouts.go for its five-deadline profile.
package transport
