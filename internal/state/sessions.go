package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Save writes the session blob, replacing any previous snapshot.
func (db *DB) Save(ctx context.Context, id string, blob []byte) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (session_id, data, updated_at)
		VALUES (?, ?, ?)
	`, id, string(blob), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

// Load returns the stored blob, or nil if the session does not exist.
func (db *DB) Load(ctx context.Context, id string) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var data string
	err := db.conn.QueryRowContext(ctx, `
		SELECT data FROM sessions WHERE session_id = ?
	`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return []byte(data), nil
}

// List returns stored sessions, most recently updated first.
func (db *DB) List(ctx context.Context) ([]Record, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT session_id, updated_at, length(data) FROM sessions
		ORDER BY updated_at DESC, session_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var updated string
		if err := rows.Scan(&r.ID, &updated, &r.Size); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if r.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Delete removes a stored session. Deleting a missing session is not an error.
func (db *DB) Delete(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// PurgeOldSessions deletes sessions not updated within the specified duration.
// Returns the number of sessions deleted.
func (db *DB) PurgeOldSessions(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := db.Exec(`DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old sessions: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}
