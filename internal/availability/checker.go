package availability

import (
	"context"
	"fmt"
	"time"

	"courtbook/internal/catalog"
	"courtbook/internal/models"
	"courtbook/internal/timeutil"
)

const (
	KindCourt     = "court"
	KindEquipment = "equipment"
	KindCoach     = "coach"
)

// Bookings читающая часть хранилища броней. Реализуется и самим *database.DB,
// и его транзакционной оберткой, чтобы финальная проверка при commit-е
// выполнялась над состоянием внутри транзакции.
type Bookings interface {
	OverlappingCourtBookings(ctx context.Context, courtID int64, date time.Time, window timeutil.Window) ([]models.Booking, error)
	OverlappingCoachBookings(ctx context.Context, coachID int64, date time.Time, window timeutil.Window) ([]models.Booking, error)
	EquipmentUsage(ctx context.Context, equipmentID int64, date time.Time, window timeutil.Window) (int64, error)
}

type Request struct {
	Date      time.Time
	Window    timeutil.Window
	CourtID   int64
	Equipment []models.BookingEquipment
	CoachID   int64 // 0 = без тренера
}

type Conflict struct {
	Kind       string `json:"kind"`
	ResourceID int64  `json:"resource_id"`
	Detail     string `json:"detail"`
}

type Result struct {
	Available bool       `json:"available"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Checker оценивает доступность набора ресурсов. Только чтение:
// занятость это обычный результат, а не ошибка.
type Checker struct {
	catalog  catalog.Provider
	bookings Bookings
}

func NewChecker(provider catalog.Provider, bookings Bookings) *Checker {
	return &Checker{catalog: provider, bookings: bookings}
}

func (c *Checker) Check(ctx context.Context, req Request) (Result, error) {
	return c.CheckWith(ctx, c.bookings, req)
}

// CheckWith выполняет ту же проверку над произвольным источником броней.
func (c *Checker) CheckWith(ctx context.Context, bookings Bookings, req Request) (Result, error) {
	result := Result{Available: true}

	courtConflict, err := c.checkCourt(ctx, bookings, req)
	if err != nil {
		return Result{}, err
	}
	if courtConflict != nil {
		result.Available = false
		result.Conflicts = append(result.Conflicts, *courtConflict)
	}

	for _, line := range req.Equipment {
		equipmentConflict, err := c.checkEquipment(ctx, bookings, req, line)
		if err != nil {
			return Result{}, err
		}
		if equipmentConflict != nil {
			result.Available = false
			result.Conflicts = append(result.Conflicts, *equipmentConflict)
		}
	}

	if req.CoachID != 0 {
		coachConflict, err := c.checkCoach(ctx, bookings, req)
		if err != nil {
			return Result{}, err
		}
		if coachConflict != nil {
			result.Available = false
			result.Conflicts = append(result.Conflicts, *coachConflict)
		}
	}

	return result, nil
}

func (c *Checker) checkCourt(ctx context.Context, bookings Bookings, req Request) (*Conflict, error) {
	conflicting, err := bookings.OverlappingCourtBookings(ctx, req.CourtID, req.Date, req.Window)
	if err != nil {
		return nil, fmt.Errorf("court availability check failed: %w", err)
	}
	if len(conflicting) > 0 {
		return &Conflict{
			Kind:       KindCourt,
			ResourceID: req.CourtID,
			Detail:     "court is already booked for the requested window",
		}, nil
	}
	return nil, nil
}

func (c *Checker) checkEquipment(ctx context.Context, bookings Bookings, req Request, line models.BookingEquipment) (*Conflict, error) {
	item, err := c.catalog.Equipment(ctx, line.EquipmentID)
	if err != nil {
		return nil, err
	}

	if !item.Bookable() {
		return &Conflict{
			Kind:       KindEquipment,
			ResourceID: line.EquipmentID,
			Detail:     fmt.Sprintf("%s is not available for booking", item.Name),
		}, nil
	}

	used, err := bookings.EquipmentUsage(ctx, line.EquipmentID, req.Date, req.Window)
	if err != nil {
		return nil, fmt.Errorf("equipment availability check failed: %w", err)
	}

	if item.TotalQuantity-used < line.Quantity {
		return &Conflict{
			Kind:       KindEquipment,
			ResourceID: line.EquipmentID,
			Detail: fmt.Sprintf("not enough %s available: requested %d, free %d",
				item.Name, line.Quantity, item.TotalQuantity-used),
		}, nil
	}
	return nil, nil
}

func (c *Checker) checkCoach(ctx context.Context, bookings Bookings, req Request) (*Conflict, error) {
	coach, err := c.catalog.Coach(ctx, req.CoachID)
	if err != nil {
		return nil, err
	}

	if !coach.Bookable() {
		return &Conflict{
			Kind:       KindCoach,
			ResourceID: req.CoachID,
			Detail:     fmt.Sprintf("coach %s is not active", coach.Name),
		}, nil
	}

	if !coachScheduleCovers(coach, req.Date, req.Window) {
		return &Conflict{
			Kind:       KindCoach,
			ResourceID: req.CoachID,
			Detail:     fmt.Sprintf("coach %s does not work at the requested time", coach.Name),
		}, nil
	}

	conflicting, err := bookings.OverlappingCoachBookings(ctx, req.CoachID, req.Date, req.Window)
	if err != nil {
		return nil, fmt.Errorf("coach availability check failed: %w", err)
	}
	if len(conflicting) > 0 {
		return &Conflict{
			Kind:       KindCoach,
			ResourceID: req.CoachID,
			Detail:     fmt.Sprintf("coach %s is already booked for the requested window", coach.Name),
		}, nil
	}
	return nil, nil
}

// coachScheduleCovers проверяет, что окно целиком лежит в одном из недельных
// окон тренера, совпадающих по дню недели с датой.
func coachScheduleCovers(coach models.Coach, date time.Time, window timeutil.Window) bool {
	day := timeutil.DayOfWeek(date)
	for _, slot := range coach.Availability {
		if slot.DayOfWeek != day {
			continue
		}
		slotWindow, err := timeutil.ParseWindow(slot.Start, slot.End)
		if err != nil {
			continue
		}
		if slotWindow.Contains(window) {
			return true
		}
	}
	return false
}
