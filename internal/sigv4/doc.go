// Package sigv4 — see sign.go.
package sigv4
