// Package storage persists finished runs and operator audit entries.
//
// Drivers:
//   - file: append-only JSON Lines, recent runs kept in memory
//   - sqlite: a single database file (build with -tags sqlite)
package storage
