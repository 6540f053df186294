package database

import (
	"context"
	"fmt"
	"time"
)

// LogErrorEvent appends one classified, already-redacted error record.
// Raw payloads must never reach this table.
func (db *DB) LogErrorEvent(ctx context.Context, source, correlationID, severity string, redactedPayload []byte) error {
	query := `INSERT INTO error_log (source, correlation_id, severity, payload, created_at)
              VALUES (?, ?, ?, ?, ?)`
	_, err := db.db.ExecContext(ctx, query, source, correlationID, severity, string(redactedPayload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("log error event: %w", err)
	}
	return nil
}

// CountRecentErrors reports error_log rows within the trailing window,
// used by the admin stats endpoint.
func (db *DB) CountRecentErrors(ctx context.Context, window time.Duration) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM error_log WHERE created_at >= ?`
	err := db.db.QueryRowContext(ctx, query, time.Now().UTC().Add(-window)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent errors: %w", err)
	}
	return count, nil
}

// BookingStats summarizes bookings per status for the admin surface.
func (db *DB) BookingStats(ctx context.Context) (map[string]int64, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM bookings GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("booking stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan booking stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
