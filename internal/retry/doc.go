// Package retry — see retry.go for the bounded-retry wrapper (C5).
package retry
