package database

import (
	"context"
	"fmt"
	"time"

	"autoagenda/internal/models"
)

func (db *DB) CreateNotificationJob(ctx context.Context, job *models.NotificationJob) error {
	query := `INSERT INTO notification_jobs (booking_id, user_id, message, status, retry_count, last_error, created_at, next_attempt_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	result, err := db.db.ExecContext(ctx, query,
		job.BookingID,
		job.UserID,
		job.Message,
		models.NotifyPending,
		job.RetryCount,
		job.LastError,
		createdAt,
		job.NextAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("create notification job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	job.ID = id
	job.Status = models.NotifyPending
	job.CreatedAt = createdAt

	return nil
}

// GetDueNotificationJobs returns pending jobs whose backoff delay has
// elapsed. Age-based exclusion is the worker's concern, not the query's:
// expired jobs must still be fetched once so they can be abandoned loudly.
func (db *DB) GetDueNotificationJobs(ctx context.Context, now time.Time, limit int) ([]*models.NotificationJob, error) {
	query := `SELECT id, booking_id, user_id, message, status, retry_count, last_error, created_at, next_attempt_at, delivered_at
              FROM notification_jobs
              WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
              ORDER BY created_at ASC LIMIT ?`
	rows, err := db.db.QueryContext(ctx, query, models.NotifyPending, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("get due notification jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.NotificationJob
	for rows.Next() {
		j := &models.NotificationJob{}
		err := rows.Scan(
			&j.ID, &j.BookingID, &j.UserID, &j.Message, &j.Status,
			&j.RetryCount, &j.LastError, &j.CreatedAt, &j.NextAttemptAt, &j.DeliveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (db *DB) MarkNotificationDelivered(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	query := `UPDATE notification_jobs SET status = ?, delivered_at = ?, last_error = NULL WHERE id = ?`
	_, err := db.db.ExecContext(ctx, query, models.NotifyDelivered, now, id)
	if err != nil {
		return fmt.Errorf("mark notification delivered: %w", err)
	}
	return nil
}

func (db *DB) MarkNotificationRetry(ctx context.Context, id int64, lastError string, nextAttemptAt time.Time) error {
	query := `UPDATE notification_jobs
              SET retry_count = retry_count + 1, last_error = ?, next_attempt_at = ?
              WHERE id = ?`
	_, err := db.db.ExecContext(ctx, query, lastError, nextAttemptAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark notification retry: %w", err)
	}
	return nil
}

func (db *DB) MarkNotificationAbandoned(ctx context.Context, id int64, lastError string) error {
	query := `UPDATE notification_jobs SET status = ?, last_error = ? WHERE id = ?`
	_, err := db.db.ExecContext(ctx, query, models.NotifyAbandoned, lastError, id)
	if err != nil {
		return fmt.Errorf("mark notification abandoned: %w", err)
	}
	return nil
}
