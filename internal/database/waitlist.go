package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/models"
	"courtbook/internal/timeutil"
)

const waitlistColumns = `id, reference, user_id, date, start_min, end_min, court_id, status, position, notified_at, expires_at, created_at`

// JoinWaitlist вставляет запись со статусом waiting. Позиция считается как
// количество ожидающих по точному ключу (корт, дата, окно) плюс один,
// в одной транзакции со вставкой.
func (db *DB) JoinWaitlist(ctx context.Context, entry *models.WaitlistEntry) error {
	window, err := timeutil.ParseWindow(entry.StartTime, entry.EndTime)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var waiting int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM waitlist
         WHERE court_id = ? AND date = ? AND start_min = ? AND end_min = ? AND status = ?`,
		entry.CourtID, entry.Date.Format(timeutil.DateLayout),
		window.Start, window.End, models.WaitlistWaiting).Scan(&waiting)
	if err != nil {
		return fmt.Errorf("failed to count waiting entries: %w", err)
	}

	now := time.Now()
	entry.Position = waiting + 1
	entry.Status = models.WaitlistWaiting
	entry.CreatedAt = now

	result, err := tx.ExecContext(ctx,
		`INSERT INTO waitlist (
            reference, user_id, date, start_min, end_min,
            court_id, status, position, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Reference,
		entry.UserID,
		entry.Date.Format(timeutil.DateLayout),
		window.Start,
		window.End,
		entry.CourtID,
		entry.Status,
		entry.Position,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert waitlist entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id

	return tx.Commit()
}

// PromoteOldest находит самую раннюю ожидающую запись по ключу и переводит
// ее в notified с отметками времени. Возвращает nil, nil при пустой очереди.
func (db *DB) PromoteOldest(ctx context.Context, courtID int64, date time.Time, window timeutil.Window, ttl time.Duration) (*models.WaitlistEntry, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + waitlistColumns + ` FROM waitlist
        WHERE court_id = ? AND date = ? AND start_min = ? AND end_min = ? AND status = ?
        ORDER BY created_at, id LIMIT 1`

	entry, err := scanWaitlistRow(tx.QueryRowContext(ctx, query,
		courtID, date.Format(timeutil.DateLayout),
		window.Start, window.End, models.WaitlistWaiting))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	notifiedAt := time.Now()
	expiresAt := notifiedAt.Add(ttl)

	_, err = tx.ExecContext(ctx,
		`UPDATE waitlist SET status = ?, notified_at = ?, expires_at = ? WHERE id = ?`,
		models.WaitlistNotified, notifiedAt, expiresAt, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark entry notified: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit promotion: %w", err)
	}

	entry.Status = models.WaitlistNotified
	entry.NotifiedAt = &notifiedAt
	entry.ExpiresAt = &expiresAt
	return entry, nil
}

func (db *DB) GetWaitlistEntry(ctx context.Context, id int64) (*models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist WHERE id = ?`
	entry, err := scanWaitlistRow(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWaitlistNotFound
	}
	return entry, err
}

// RemoveWaitlistEntry удаляет запись безусловно, независимо от статуса.
func (db *DB) RemoveWaitlistEntry(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM waitlist WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove waitlist entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrWaitlistNotFound
	}
	return nil
}

// WaitlistEntries все записи по ключу в порядке очереди.
func (db *DB) WaitlistEntries(ctx context.Context, courtID int64, date time.Time, window timeutil.Window) ([]models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist
        WHERE court_id = ? AND date = ? AND start_min = ? AND end_min = ?
        ORDER BY created_at, id`

	rows, err := db.QueryContext(ctx, query,
		courtID, date.Format(timeutil.DateLayout), window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query waitlist entries: %w", err)
	}
	defer rows.Close()

	var entries []models.WaitlistEntry
	for rows.Next() {
		entry, err := scanWaitlistRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// ExpireNotifiedBefore переводит в expired все notified записи, чей срок
// уведомления истек к моменту now. Возвращает затронутые записи.
func (db *DB) ExpireNotifiedBefore(ctx context.Context, now time.Time) ([]models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist
        WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?
        ORDER BY expires_at`

	rows, err := db.QueryContext(ctx, query, models.WaitlistNotified, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue entries: %w", err)
	}
	defer rows.Close()

	var overdue []models.WaitlistEntry
	for rows.Next() {
		entry, err := scanWaitlistRow(rows)
		if err != nil {
			return nil, err
		}
		overdue = append(overdue, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range overdue {
		_, err := db.ExecContext(ctx,
			`UPDATE waitlist SET status = ? WHERE id = ? AND status = ?`,
			models.WaitlistExpired, overdue[i].ID, models.WaitlistNotified)
		if err != nil {
			return nil, fmt.Errorf("failed to expire waitlist entry %d: %w", overdue[i].ID, err)
		}
		overdue[i].Status = models.WaitlistExpired
	}

	return overdue, nil
}

func scanWaitlistRow(row rowScanner) (*models.WaitlistEntry, error) {
	var (
		entry      models.WaitlistEntry
		dateStr    string
		startMin   int
		endMin     int
		notifiedAt sql.NullTime
		expiresAt  sql.NullTime
	)

	err := row.Scan(
		&entry.ID,
		&entry.Reference,
		&entry.UserID,
		&dateStr,
		&startMin,
		&endMin,
		&entry.CourtID,
		&entry.Status,
		&entry.Position,
		&notifiedAt,
		&expiresAt,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Date, err = timeutil.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt waitlist date %q: %w", dateStr, err)
	}
	entry.StartTime = timeutil.FormatClock(startMin)
	entry.EndTime = timeutil.FormatClock(endMin)

	if notifiedAt.Valid {
		entry.NotifiedAt = &notifiedAt.Time
	}
	if expiresAt.Valid {
		entry.ExpiresAt = &expiresAt.Time
	}

	return &entry, nil
}
