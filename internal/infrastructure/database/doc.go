// Package database provides SQLite connectivity for the bridge.
//
// The database stores state history only: the adapter's authoritative view of
// device state is held in memory and rebuilt from a fresh device read on
// restart, so nothing here is read back on the hot path.
//
// The package wraps database/sql with the mattn/go-sqlite3 driver, configures
// WAL mode and busy timeouts, and applies embedded SQL migrations on startup.
//
// # Thread Safety
//
// *DB embeds *sql.DB and inherits its concurrency guarantees. The connection
// pool is capped at one open connection because SQLite supports a single
// writer.
package database
