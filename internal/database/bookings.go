package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/models"
	"courtbook/internal/timeutil"

	"github.com/mattn/go-sqlite3"
)

const bookingColumns = `id, reference, user_id, date, start_min, end_min, court_id, coach_id, pricing, status, created_at, updated_at`

// OverlappingCourtBookings возвращает подтвержденные брони корта на дату,
// пересекающиеся с окном. Полуоткрытые интервалы: start < reqEnd AND end > reqStart.
func (db *DB) OverlappingCourtBookings(ctx context.Context, courtID int64, date time.Time, window timeutil.Window) ([]models.Booking, error) {
	return db.overlappingCourtBookings(ctx, db.DB, courtID, date, window)
}

func (db *DB) overlappingCourtBookings(ctx context.Context, q Queryer, courtID int64, date time.Time, window timeutil.Window) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
        WHERE court_id = ? AND date = ? AND status = ?
        AND start_min < ? AND end_min > ?
        ORDER BY start_min`

	rows, err := q.QueryContext(ctx, query, courtID, date.Format(timeutil.DateLayout),
		models.StatusConfirmed, window.End, window.Start)
	if err != nil {
		return nil, fmt.Errorf("failed to query court bookings: %w", err)
	}
	defer rows.Close()

	return db.scanBookings(ctx, q, rows)
}

// OverlappingCoachBookings аналогичная выборка по тренеру.
func (db *DB) OverlappingCoachBookings(ctx context.Context, coachID int64, date time.Time, window timeutil.Window) ([]models.Booking, error) {
	return db.overlappingCoachBookings(ctx, db.DB, coachID, date, window)
}

func (db *DB) overlappingCoachBookings(ctx context.Context, q Queryer, coachID int64, date time.Time, window timeutil.Window) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
        WHERE coach_id = ? AND date = ? AND status = ?
        AND start_min < ? AND end_min > ?
        ORDER BY start_min`

	rows, err := q.QueryContext(ctx, query, coachID, date.Format(timeutil.DateLayout),
		models.StatusConfirmed, window.End, window.Start)
	if err != nil {
		return nil, fmt.Errorf("failed to query coach bookings: %w", err)
	}
	defer rows.Close()

	return db.scanBookings(ctx, q, rows)
}

// EquipmentUsage суммарное количество единиц инвентаря, занятых
// подтвержденными бронями, пересекающими окно.
func (db *DB) EquipmentUsage(ctx context.Context, equipmentID int64, date time.Time, window timeutil.Window) (int64, error) {
	return db.equipmentUsage(ctx, db.DB, equipmentID, date, window)
}

func (db *DB) equipmentUsage(ctx context.Context, q Queryer, equipmentID int64, date time.Time, window timeutil.Window) (int64, error) {
	query := `SELECT COALESCE(SUM(be.quantity), 0)
        FROM booking_equipment be
        JOIN bookings b ON b.id = be.booking_id
        WHERE be.equipment_id = ? AND b.date = ? AND b.status = ?
        AND b.start_min < ? AND b.end_min > ?`

	var used int64
	err := q.QueryRowContext(ctx, query, equipmentID, date.Format(timeutil.DateLayout),
		models.StatusConfirmed, window.End, window.Start).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("failed to sum equipment usage: %w", err)
	}
	return used, nil
}

// EquipmentUsageBefore та же сумма, но только по броням с меньшим id.
// Оптимистичная стратегия разбирает ею гонку за общий инвентарь: из двух
// одновременно вставленных строк уступает строка с большим id.
func (db *DB) EquipmentUsageBefore(ctx context.Context, equipmentID int64, date time.Time, window timeutil.Window, beforeID int64) (int64, error) {
	query := `SELECT COALESCE(SUM(be.quantity), 0)
        FROM booking_equipment be
        JOIN bookings b ON b.id = be.booking_id
        WHERE be.equipment_id = ? AND b.date = ? AND b.status = ?
        AND b.start_min < ? AND b.end_min > ? AND b.id < ?`

	var used int64
	err := db.QueryRowContext(ctx, query, equipmentID, date.Format(timeutil.DateLayout),
		models.StatusConfirmed, window.End, window.Start, beforeID).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("failed to sum equipment usage: %w", err)
	}
	return used, nil
}

// CoachBookedBefore занят ли тренер пересекающейся бронью с меньшим id.
func (db *DB) CoachBookedBefore(ctx context.Context, coachID int64, date time.Time, window timeutil.Window, beforeID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM bookings
        WHERE coach_id = ? AND date = ? AND status = ?
        AND start_min < ? AND end_min > ? AND id < ?)`

	var busy bool
	err := db.QueryRowContext(ctx, query, coachID, date.Format(timeutil.DateLayout),
		models.StatusConfirmed, window.End, window.Start, beforeID).Scan(&busy)
	if err != nil {
		return false, fmt.Errorf("failed to check coach bookings: %w", err)
	}
	return busy, nil
}

// DeleteBooking жестко удаляет строку вместе с инвентарем. Единственный
// вызывающий: откат проигравшей вставки оптимистичной стратегии.
func (db *DB) DeleteBooking(ctx context.Context, id int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM booking_equipment WHERE booking_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete booking equipment: %w", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return nil
}

// InsertBooking простая вставка без проверок. Используется стратегией locking
// (проверка уже выполнена под захваченным замком) и оптимистичной стратегией,
// где конфликт уникального индекса транслируется в ErrNotAvailable.
func (db *DB) InsertBooking(ctx context.Context, booking *models.Booking) error {
	err := db.insertBooking(ctx, db.DB, booking)
	if isUniqueViolation(err) {
		return ErrNotAvailable
	}
	return err
}

// CreateBookingTx выполняет атомарный commit: открывает транзакцию,
// запускает переданную повторную проверку доступности над ней и вставляет
// бронь только если проверка прошла. Либо всё, либо ничего.
func (db *DB) CreateBookingTx(ctx context.Context, booking *models.Booking, recheck func(ctx context.Context, q Queryer) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if recheck != nil {
		if err := recheck(ctx, tx); err != nil {
			return err
		}
	}

	if err := db.insertBooking(ctx, tx, booking); err != nil {
		if isUniqueViolation(err) {
			return ErrNotAvailable
		}
		return err
	}

	return tx.Commit()
}

func (db *DB) insertBooking(ctx context.Context, q Queryer, booking *models.Booking) error {
	window, err := timeutil.ParseWindow(booking.StartTime, booking.EndTime)
	if err != nil {
		return err
	}

	var pricingJSON []byte
	if booking.Pricing != nil {
		pricingJSON, err = json.Marshal(booking.Pricing)
		if err != nil {
			return fmt.Errorf("failed to marshal pricing snapshot: %w", err)
		}
	}

	now := time.Now()
	query := `INSERT INTO bookings (
            reference, user_id, date, start_min, end_min,
            court_id, coach_id, pricing, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := q.ExecContext(ctx, query,
		booking.Reference,
		booking.UserID,
		booking.Date.Format(timeutil.DateLayout),
		window.Start,
		window.End,
		booking.CourtID,
		booking.CoachID,
		string(pricingJSON),
		booking.Status,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now

	for _, line := range booking.Equipment {
		_, err := q.ExecContext(ctx,
			`INSERT INTO booking_equipment (booking_id, equipment_id, quantity) VALUES (?, ?, ?)`,
			id, line.EquipmentID, line.Quantity)
		if err != nil {
			return fmt.Errorf("failed to insert booking equipment: %w", err)
		}
	}

	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`

	booking, err := db.scanBookingRow(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}

	booking.Equipment, err = db.loadEquipment(ctx, db.DB, booking.ID)
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// CancelBooking переводит бронь в cancelled с проверкой владельца.
// admin=true снимает проверку владельца.
func (db *DB) CancelBooking(ctx context.Context, id, userID int64, admin bool) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := db.scanBookingRow(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}

	if !admin && booking.UserID != userID {
		return nil, ErrNotOwner
	}
	if booking.Status == models.StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		models.StatusCancelled, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancel: %w", err)
	}

	booking.Status = models.StatusCancelled
	booking.UpdatedAt = now

	booking.Equipment, err = db.loadEquipment(ctx, db.DB, booking.ID)
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (db *DB) UserBookings(ctx context.Context, userID int64) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
        WHERE user_id = ? ORDER BY date DESC, start_min DESC`

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user bookings: %w", err)
	}
	defer rows.Close()

	return db.scanBookings(ctx, db.DB, rows)
}

// BookingsByDateRange возвращает подтвержденные брони за период для экспорта.
func (db *DB) BookingsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
        WHERE date BETWEEN ? AND ? AND status = ?
        ORDER BY date, start_min`

	rows, err := db.QueryContext(ctx, query,
		startDate.Format(timeutil.DateLayout),
		endDate.Format(timeutil.DateLayout),
		models.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings by range: %w", err)
	}
	defer rows.Close()

	return db.scanBookings(ctx, db.DB, rows)
}

func (db *DB) scanBookings(ctx context.Context, q Queryer, rows *sql.Rows) ([]models.Booking, error) {
	var bookings []models.Booking
	for rows.Next() {
		booking, err := db.scanBookingRow(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range bookings {
		equipment, err := db.loadEquipment(ctx, q, bookings[i].ID)
		if err != nil {
			return nil, err
		}
		bookings[i].Equipment = equipment
	}
	return bookings, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanBookingRow(row rowScanner) (*models.Booking, error) {
	var (
		booking     models.Booking
		dateStr     string
		startMin    int
		endMin      int
		pricingJSON sql.NullString
	)

	err := row.Scan(
		&booking.ID,
		&booking.Reference,
		&booking.UserID,
		&dateStr,
		&startMin,
		&endMin,
		&booking.CourtID,
		&booking.CoachID,
		&pricingJSON,
		&booking.Status,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	booking.Date, err = timeutil.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt booking date %q: %w", dateStr, err)
	}
	booking.StartTime = timeutil.FormatClock(startMin)
	booking.EndTime = timeutil.FormatClock(endMin)

	if pricingJSON.Valid && pricingJSON.String != "" {
		var breakdown models.Breakdown
		if err := json.Unmarshal([]byte(pricingJSON.String), &breakdown); err != nil {
			return nil, fmt.Errorf("corrupt pricing snapshot for booking %d: %w", booking.ID, err)
		}
		booking.Pricing = &breakdown
	}

	return &booking, nil
}

func (db *DB) loadEquipment(ctx context.Context, q Queryer, bookingID int64) ([]models.BookingEquipment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT equipment_id, quantity FROM booking_equipment WHERE booking_id = ? ORDER BY equipment_id`,
		bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking equipment: %w", err)
	}
	defer rows.Close()

	var lines []models.BookingEquipment
	for rows.Next() {
		var line models.BookingEquipment
		if err := rows.Scan(&line.EquipmentID, &line.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
