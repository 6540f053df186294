package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"autoagenda/internal/models"
)

const bookingColumns = `id, professional_id, user_id, service_id, start_time, end_time,
                 status, sync_status, calendar_event_id, correlation_id,
                 created_at, updated_at, version`

// CreateBookingIfFree runs the overlap check and the insert in a single
// transaction. The caller must hold the slot lock; the transaction is the
// durability boundary, not the mutual exclusion point.
func (db *DB) CreateBookingIfFree(ctx context.Context, booking *models.BookingRecord) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Two intervals [a,b) and [c,d) overlap iff a < d && c < b.
	var overlapping int
	queryCount := `SELECT COUNT(*) FROM bookings
                   WHERE professional_id = ?
                     AND status IN (?, ?)
                     AND start_time < ? AND end_time > ?`
	err = tx.QueryRowContext(ctx, queryCount,
		booking.ProfessionalID,
		models.StatusPending, models.StatusConfirmed,
		booking.EndTime.UTC(), booking.StartTime.UTC(),
	).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("check overlap in tx: %w", err)
	}
	if overlapping > 0 {
		return ErrSlotOccupied
	}

	queryInsert := `INSERT INTO bookings (
                professional_id, user_id, service_id, start_time, end_time,
                status, sync_status, calendar_event_id, correlation_id,
                created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, queryInsert,
		booking.ProfessionalID,
		booking.UserID,
		booking.ServiceID,
		booking.StartTime.UTC(),
		booking.EndTime.UTC(),
		models.StatusPending,
		models.SyncUnsynced,
		"",
		booking.CorrelationID,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id in tx: %w", err)
	}
	booking.ID = id
	booking.Status = models.StatusPending
	booking.SyncStatus = models.SyncUnsynced
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	return tx.Commit()
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.BookingRecord, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(db.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return booking, nil
}

// UpdateBookingStatus sets both the booking and sync status.
func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, status, syncStatus string) error {
	query := `UPDATE bookings SET status = ?, sync_status = ?, version = version + 1, updated_at = ? WHERE id = ?`
	result, err := db.db.ExecContext(ctx, query, status, syncStatus, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ConfirmBooking transitions a pending record to confirmed with sync=ok and
// stores the external calendar event id.
func (db *DB) ConfirmBooking(ctx context.Context, id int64, eventID string) error {
	query := `UPDATE bookings
              SET status = ?, sync_status = ?, calendar_event_id = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND status = ?`
	result, err := db.db.ExecContext(ctx, query,
		models.StatusConfirmed, models.SyncOK, eventID, time.Now().UTC(), id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("confirm booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// RollbackBooking is the saga compensation: it logically deletes the
// reservation. Idempotent — rolling back an already rolled_back record is
// a no-op, not an error.
func (db *DB) RollbackBooking(ctx context.Context, id int64) error {
	query := `UPDATE bookings
              SET status = ?, sync_status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND status != ?`
	_, err := db.db.ExecContext(ctx, query,
		models.StatusRolledBack, models.SyncFailed, time.Now().UTC(), id, models.StatusRolledBack)
	if err != nil {
		return fmt.Errorf("rollback booking: %w", err)
	}
	return nil
}

func (db *DB) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.BookingRecord, error) {
	query := `SELECT ` + bookingColumns + `
              FROM bookings
              WHERE start_time >= ? AND start_time < ? AND status != ?
              ORDER BY start_time ASC`
	rows, err := db.db.QueryContext(ctx, query, start.UTC(), end.UTC(), models.StatusRolledBack)
	if err != nil {
		return nil, fmt.Errorf("get bookings by date range: %w", err)
	}
	defer rows.Close()

	var bookings []*models.BookingRecord
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.BookingRecord, error) {
	var b models.BookingRecord
	err := row.Scan(
		&b.ID, &b.ProfessionalID, &b.UserID, &b.ServiceID,
		&b.StartTime, &b.EndTime,
		&b.Status, &b.SyncStatus, &b.CalendarEventID, &b.CorrelationID,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
