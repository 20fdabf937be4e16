// Package state holds the per-user conversation session and the stores that persist it.
//
// A Session carries the login progress, the bearer credential and at most one active
// Flow. Stores expire idle sessions after a rolling TTL and apply Merge atomically per key.
package state
