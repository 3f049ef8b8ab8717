package database

import (
	"context"
	"time"

	"courtbook/internal/models"
	"courtbook/internal/timeutil"
)

// TxBookings читающие операции над бронями, привязанные к произвольному
// Queryer. Внутри транзакции создания брони повторная проверка доступности
// выполняется через эту обертку, чтобы видеть состояние самой транзакции.
type TxBookings struct {
	db *DB
	q  Queryer
}

func (db *DB) WithQueryer(q Queryer) *TxBookings {
	return &TxBookings{db: db, q: q}
}

func (r *TxBookings) OverlappingCourtBookings(ctx context.Context, courtID int64, date time.Time, window timeutil.Window) ([]models.Booking, error) {
	return r.db.overlappingCourtBookings(ctx, r.q, courtID, date, window)
}

func (r *TxBookings) OverlappingCoachBookings(ctx context.Context, coachID int64, date time.Time, window timeutil.Window) ([]models.Booking, error) {
	return r.db.overlappingCoachBookings(ctx, r.q, coachID, date, window)
}

func (r *TxBookings) EquipmentUsage(ctx context.Context, equipmentID int64, date time.Time, window timeutil.Window) (int64, error) {
	return r.db.equipmentUsage(ctx, r.q, equipmentID, date, window)
}
