// Package store provides a SQLite-backed record store and run journal.
//
// Every logical table lives in one generic records table; fields are stored
// as a JSON object and filtered with json_extract/json_each. The store
// implements recordstore.Client, so the reconciliation engine runs unchanged
// against a local mirror, an offline rehearsal database, or a test fixture.
//
// # Critical Patterns
//
// Deterministic Query Results
//   - All reads ORDER BY seq ASC (insertion order, a logical clock)
//   - Pagination is keyset-based on seq, never OFFSET
//
// Merge Updates
//   - Update merges supplied fields into the stored object
//   - Fields not named in an update are left untouched
//
// Run Journal
//   - run_log records every decision of every run, append-only
//   - Ordered by seq; no wall-clock columns
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
