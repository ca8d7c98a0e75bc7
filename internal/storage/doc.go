// Package storage is a small TTL key-value layer shared by the delivery cache,
// the image artifact index and the notifier dedup state.
//
// Backends:
//   - "memory": process-local map (default)
//   - "sqlite": SQLite database file, schema managed by goose
//   - "redis":  Redis server, keys expire natively
package storage
