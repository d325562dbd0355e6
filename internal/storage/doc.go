// Package storage persists job firing history.
//
// Two drivers are available:
//   - "file": append-only JSON Lines plus an in-memory tail for queries
//   - "sqlite": a SQLite database file (pure Go driver, no cgo)
package storage
