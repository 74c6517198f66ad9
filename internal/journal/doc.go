// Package journal provides SQLite-backed storage for registry operation logs.
//
// Each harness or CLI run is recorded as a run row plus an ordered list of
// event rows, one per registry operation:
//   - Runs: scenario name and a UUIDv7 run id
//   - Events: op, natural key, lookup id, outcome, version, ref count,
//     payload size and payload digest
//
// Payload bytes are never stored; the digest from internal/canon is enough
// to compare two runs. The journal is diagnostic tooling and plays no part
// in how the registry keeps headers, which stay in memory only.
//
// # Ordering
//
// Events are ordered by the per-run seq the harness assigns, never
// by wall time. Queries always include ORDER BY seq ASC.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package journal
