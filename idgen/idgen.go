// Package idgen generates the ids of snapshots and batches.
//
// Ids are UUIDv7 so rows sort by creation time in the store and in sink
// output without a separate sequence column.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an id using Default.
func New() string {
	return Default()
}
