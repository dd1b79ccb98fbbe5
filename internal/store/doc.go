// Package store archives loaded case files in SQLite.
//
// Each imported run is stored as three tables:
//   - runs: one row per simulation_info, keyed by run uuid
//   - drivers: driver_info records in file order
//   - cases: iteration cases in file order, with parent and driver linkage
//
// Every record also keeps its wire document as compact JSON, so ReadDataset
// rebuilds a run through the regular loader and gets the same validation and
// indexing as a file on disk.
//
// # Ordering
//
// All reads order by the seq column (file position), never by timestamp, so
// a run read back has exactly the iteration order of the file it came from.
//
// # Migrations
//
// The schema version lives in PRAGMA user_version. Open applies each
// pending migration in its own transaction and refuses an archive written
// by a newer version.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
