// Package storage defines the append-only conversation log interface and
// sentinel errors shared by its adapter implementations (memory, file,
// postgres).
package storage
