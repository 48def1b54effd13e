// Package history persists device state changes to SQLite for diagnostics.
//
// Every accepted state view the bridge publishes is appended to the
// state_history table, tagged with how it was observed (poll, push, or
// command). The table is a local audit trail that works even when the
// time-series database is down; it is never read back into live state.
package history
