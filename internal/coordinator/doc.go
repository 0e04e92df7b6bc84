// Package coordinator — see coordinator.go for the state machine, the
// in-order writer, and the worker pool (C7); options.go for the
// per-download configuration; state.go for the state enum.
package coordinator
