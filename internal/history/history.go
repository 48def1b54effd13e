package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wledjoy/wledbridge/internal/light"
)

// Source values recording how a state change was observed.
const (
	SourcePoll    = "poll"
	SourcePush    = "push"
	SourceCommand = "command"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// StateRecord is the JSON snapshot persisted per history row. A trimmed
// projection of the published state: the catalog is deliberately excluded,
// it is large and reconstructable from the device.
type StateRecord struct {
	Power          bool     `json:"power"`
	Brightness     uint8    `json:"brightness"`
	Mode           string   `json:"mode"`
	RGB            [3]uint8 `json:"rgb"`
	ColorTempMired int      `json:"color_temp_mired,omitempty"`
	Selected       string   `json:"selected,omitempty"`
	Available      bool     `json:"available"`
	Generation     uint64   `json:"generation"`
}

// NewStateRecord projects a published state into its persisted form.
func NewStateRecord(s light.State) StateRecord {
	return StateRecord{
		Power:          s.View.Power,
		Brightness:     s.View.Brightness,
		Mode:           string(s.View.Mode),
		RGB:            s.View.RGB,
		ColorTempMired: s.View.ColorTempMired,
		Selected:       s.View.Selected,
		Available:      s.Available,
		Generation:     s.Generation,
	}
}

// Entry is one stored state change.
type Entry struct {
	ID        int64       `json:"id"`
	DeviceID  string      `json:"device_id"`
	State     StateRecord `json:"state"`
	Source    string      `json:"source"`
	CreatedAt time.Time   `json:"created_at"`
}

// Repository stores device state changes in the state_history table.
//
// The table is an append-only audit trail for diagnostics: nothing in the
// bridge ever reads it back into live state, so a wiped database costs
// history, never correctness.
//
// Thread Safety: safe for concurrent use; the underlying *sql.DB serializes
// access.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repository on an open database connection. The
// state_history migration must already be applied.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record inserts a state change row for a device.
func (r *Repository) Record(ctx context.Context, deviceID string, state StateRecord, source string) error {
	if deviceID == "" {
		return fmt.Errorf("history: device id is required")
	}
	if source == "" {
		source = SourcePoll
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("history: marshalling state: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO state_history (device_id, state, source) VALUES (?, ?, ?)",
		deviceID,
		string(stateJSON),
		source,
	)
	if err != nil {
		return fmt.Errorf("history: inserting state change: %w", err)
	}
	return nil
}

// GetHistory returns recent entries for a device, newest first. The limit
// defaults to 50 and is clamped to 200.
func (r *Repository) GetHistory(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("history: device id is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, state, source, created_at
		 FROM state_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: querying: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var stateJSON string
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &stateJSON, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scanning row: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &entry.State); err != nil {
			return nil, fmt.Errorf("history: unmarshalling state: %w", err)
		}

		timestamp, err := parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating rows: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the given retention. Returns the number
// of rows removed.
func (r *Repository) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("history: retention must be positive")
	}

	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM state_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("history: pruning: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: checking rows affected: %w", err)
	}
	return removed, nil
}

// parseTimestamp handles both RFC3339 and SQLite's bare CURRENT_TIMESTAMP
// format.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("history: created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}
	fallback, fallbackErr := time.Parse("2006-01-02 15:04:05", value)
	if fallbackErr == nil {
		return fallback.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("history: parsing created_at: %w", err)
}
