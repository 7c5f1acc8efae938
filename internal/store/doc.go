// Package store provides SQLite-backed durable storage for session traces.
//
// The store implements an append-only log with:
//   - Sessions: one row per run of a clock tree
//   - Events: the ordered trace of a session (forks, waits, resumes, tempo
//     changes, kills, marks and warnings)
//
// # Critical Patterns
//
// Idempotent Writes:
//   - Events are keyed by their content-addressed id
//   - Writing the same event twice is a no-op, so a recorder can retry
//
// Logical Order:
//   - All ordering uses seq INTEGER, NEVER wall time
//   - All event queries end in ORDER BY seq ASC, id ASC COLLATE BINARY
//
// Canonical Payload:
//   - Each event row carries its canonical JSON (RFC 8785, no floats) next
//     to the queryable REAL columns; VerifySession checks the two agree
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Event ids are computed by ir.EventID using canonical JSON and SHA-256 with
// domain separation.
package store
