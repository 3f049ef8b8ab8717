package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"courtbook/internal/availability"
	"courtbook/internal/catalog"
	"courtbook/internal/database"
	"courtbook/internal/events"
	"courtbook/internal/locker"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/pricing"
	"courtbook/internal/slots"
	"courtbook/internal/timeutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventPublisher публикация доменных событий.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// BookingService владеет жизненным циклом брони: атомарное создание,
// отмена и продвижение листа ожидания при освобождении слота.
type BookingService struct {
	db          *database.DB
	catalog     catalog.Provider
	checker     *availability.Checker
	generator   *slots.Generator
	locks       *locker.KeyedLocker
	eventBus    EventPublisher
	atomicity   string
	waitlistTTL time.Duration
	clock       timeutil.Clock
	logger      *zerolog.Logger
}

func NewBookingService(
	db *database.DB,
	provider catalog.Provider,
	checker *availability.Checker,
	generator *slots.Generator,
	eventBus EventPublisher,
	atomicity string,
	waitlistTTL time.Duration,
	clock timeutil.Clock,
	logger *zerolog.Logger,
) (*BookingService, error) {
	switch atomicity {
	case models.AtomicityTransactional, models.AtomicityLocking, models.AtomicityOptimistic:
	default:
		return nil, fmt.Errorf("unknown atomicity strategy %q", atomicity)
	}
	if waitlistTTL <= 0 {
		waitlistTTL = models.DefaultWaitlistTTLMinutes * time.Minute
	}

	return &BookingService{
		db:          db,
		catalog:     provider,
		checker:     checker,
		generator:   generator,
		locks:       locker.New(),
		eventBus:    eventBus,
		atomicity:   atomicity,
		waitlistTTL: waitlistTTL,
		clock:       clock,
		logger:      logger,
	}, nil
}

type CreateBookingRequest struct {
	UserID    int64
	Date      time.Time
	StartTime string
	EndTime   string
	CourtID   int64
	Equipment []models.BookingEquipment
	CoachID   int64 // 0 = без тренера
}

// CreateBooking выполняет атомарный цикл "проверить и записать".
// Стратегия атомарности фиксируется при старте и не перевыбирается
// по ходу обработки запроса.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	window, err := s.validateCreateRequest(req)
	if err != nil {
		return nil, err
	}

	court, err := s.catalog.Court(ctx, req.CourtID)
	if err != nil {
		return nil, err
	}
	if !court.Bookable() {
		return nil, newValidationError("court %s is not bookable (status %s)", court.Name, court.Status)
	}

	lines := make([]pricing.Line, 0, len(req.Equipment))
	for _, line := range req.Equipment {
		item, err := s.catalog.Equipment(ctx, line.EquipmentID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, pricing.Line{Equipment: item, Quantity: line.Quantity})
	}

	var coach *models.Coach
	if req.CoachID != 0 {
		resolved, err := s.catalog.Coach(ctx, req.CoachID)
		if err != nil {
			return nil, err
		}
		coach = &resolved
	}

	rules, err := s.catalog.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	breakdown := pricing.Calculate(court, lines, coach, rules, req.Date, window)

	booking := &models.Booking{
		Reference: uuid.NewString(),
		UserID:    req.UserID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		CourtID:   req.CourtID,
		Equipment: req.Equipment,
		CoachID:   req.CoachID,
		Pricing:   &breakdown,
		Status:    models.StatusConfirmed,
	}

	checkReq := availability.Request{
		Date:      req.Date,
		Window:    window,
		CourtID:   req.CourtID,
		Equipment: req.Equipment,
		CoachID:   req.CoachID,
	}

	switch s.atomicity {
	case models.AtomicityTransactional:
		err = s.createTransactional(ctx, booking, checkReq)
	case models.AtomicityLocking:
		err = s.createLocking(ctx, booking, checkReq)
	case models.AtomicityOptimistic:
		err = s.createOptimistic(ctx, booking, checkReq)
	}
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			for _, c := range conflict.Conflicts {
				metrics.IncBookingConflict(c.Kind)
			}
		}
		return nil, err
	}

	metrics.IncBookingCreated()
	s.publishBookingEvent(events.EventBookingCreated, booking)
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("court_id", booking.CourtID).
		Str("date", booking.Date.Format(timeutil.DateLayout)).
		Str("window", booking.StartTime+"-"+booking.EndTime).
		Msg("booking created")

	return booking, nil
}

// createTransactional: повторная проверка и вставка в одной транзакции.
func (s *BookingService) createTransactional(ctx context.Context, booking *models.Booking, checkReq availability.Request) error {
	err := s.db.CreateBookingTx(ctx, booking, func(ctx context.Context, q database.Queryer) error {
		result, err := s.checker.CheckWith(ctx, s.db.WithQueryer(q), checkReq)
		if err != nil {
			return err
		}
		if !result.Available {
			return &ConflictError{Conflicts: result.Conflicts}
		}
		return nil
	})
	if errors.Is(err, database.ErrNotAvailable) {
		return s.indexConflict(ctx, booking, checkReq)
	}
	return err
}

// createLocking: проверка и вставка под замками всех затронутых ресурсов.
func (s *BookingService) createLocking(ctx context.Context, booking *models.Booking, checkReq availability.Request) error {
	keys := []string{fmt.Sprintf("court:%d", booking.CourtID)}
	if booking.CoachID != 0 {
		keys = append(keys, fmt.Sprintf("coach:%d", booking.CoachID))
	}
	for _, line := range booking.Equipment {
		keys = append(keys, fmt.Sprintf("equipment:%d", line.EquipmentID))
	}
	sort.Strings(keys)

	unlock := s.locks.Lock(keys...)
	defer unlock()

	result, err := s.checker.Check(ctx, checkReq)
	if err != nil {
		return err
	}
	if !result.Available {
		return &ConflictError{Conflicts: result.Conflicts}
	}

	return s.db.InsertBooking(ctx, booking)
}

// createOptimistic: вставка под частичным уникальным индексом; конфликт
// индекса превращается в повторную оценку доступности для точного ответа.
// Индекс покрывает только слот корта, поэтому емкость инвентаря и занятость
// тренера перепроверяются после вставки: гонка двух кортов за общий ресурс
// решается в пользу строки с меньшим id, проигравшая удаляется.
func (s *BookingService) createOptimistic(ctx context.Context, booking *models.Booking, checkReq availability.Request) error {
	result, err := s.checker.Check(ctx, checkReq)
	if err != nil {
		return err
	}
	if !result.Available {
		return &ConflictError{Conflicts: result.Conflicts}
	}

	err = s.db.InsertBooking(ctx, booking)
	if errors.Is(err, database.ErrNotAvailable) {
		return s.indexConflict(ctx, booking, checkReq)
	}
	if err != nil {
		return err
	}

	if len(booking.Equipment) == 0 && booking.CoachID == 0 {
		return nil
	}
	conflicts, err := s.sharedResourceOverrun(ctx, booking, checkReq.Window)
	if err == nil && len(conflicts) == 0 {
		return nil
	}

	if delErr := s.db.DeleteBooking(ctx, booking.ID); delErr != nil {
		s.logger.Error().Err(delErr).Int64("booking_id", booking.ID).Msg("failed to roll back overcommitted booking")
	}
	if err != nil {
		return err
	}
	return &ConflictError{Conflicts: conflicts}
}

// indexConflict точный ответ на нарушение уникального индекса слота.
func (s *BookingService) indexConflict(ctx context.Context, booking *models.Booking, checkReq availability.Request) error {
	retry, checkErr := s.checker.Check(ctx, checkReq)
	if checkErr == nil && !retry.Available {
		return &ConflictError{Conflicts: retry.Conflicts}
	}
	return &ConflictError{Conflicts: []availability.Conflict{{
		Kind:       availability.KindCourt,
		ResourceID: booking.CourtID,
		Detail:     "court is already booked for the requested window",
	}}}
}

// sharedResourceOverrun сверяет емкость инвентаря и занятость тренера после
// вставки, учитывая только брони, вставленные раньше нашей.
func (s *BookingService) sharedResourceOverrun(ctx context.Context, booking *models.Booking, window timeutil.Window) ([]availability.Conflict, error) {
	var conflicts []availability.Conflict

	for _, line := range booking.Equipment {
		item, err := s.catalog.Equipment(ctx, line.EquipmentID)
		if err != nil {
			return nil, err
		}
		used, err := s.db.EquipmentUsageBefore(ctx, line.EquipmentID, booking.Date, window, booking.ID)
		if err != nil {
			return nil, err
		}
		if used+line.Quantity > item.TotalQuantity {
			conflicts = append(conflicts, availability.Conflict{
				Kind:       availability.KindEquipment,
				ResourceID: line.EquipmentID,
				Detail: fmt.Sprintf("not enough %s available: requested %d, free %d",
					item.Name, line.Quantity, item.TotalQuantity-used),
			})
		}
	}

	if booking.CoachID != 0 {
		coach, err := s.catalog.Coach(ctx, booking.CoachID)
		if err != nil {
			return nil, err
		}
		busy, err := s.db.CoachBookedBefore(ctx, booking.CoachID, booking.Date, window, booking.ID)
		if err != nil {
			return nil, err
		}
		if busy {
			conflicts = append(conflicts, availability.Conflict{
				Kind:       availability.KindCoach,
				ResourceID: booking.CoachID,
				Detail:     fmt.Sprintf("coach %s is already booked for the requested window", coach.Name),
			})
		}
	}

	return conflicts, nil
}

// CancelBooking переводит бронь в cancelled и продвигает лист ожидания
// для освободившегося ключа (корт, дата, окно).
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, userID int64, admin bool) (*models.Booking, error) {
	booking, err := s.db.CancelBooking(ctx, bookingID, userID, admin)
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCancelled()
	s.publishBookingEvent(events.EventBookingCancelled, booking)
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("user_id", userID).
		Msg("booking cancelled")

	window, err := timeutil.ParseWindow(booking.StartTime, booking.EndTime)
	if err != nil {
		return booking, nil
	}
	if _, err := s.PromoteWaitlist(ctx, booking.CourtID, booking.Date, window); err != nil {
		s.logger.Error().Err(err).
			Int64("court_id", booking.CourtID).
			Msg("waitlist promotion after cancel failed")
	}

	return booking, nil
}

// CheckAvailability читающая оценка доступности. Занятость возвращается
// как данные, не как ошибка.
func (s *BookingService) CheckAvailability(ctx context.Context, date time.Time, start, end string, courtID int64, equipment []models.BookingEquipment, coachID int64) (availability.Result, error) {
	window, err := timeutil.ParseWindow(start, end)
	if err != nil {
		return availability.Result{}, newValidationError("%s", err.Error())
	}
	if err := validateEquipment(equipment); err != nil {
		return availability.Result{}, err
	}

	if _, err := s.catalog.Court(ctx, courtID); err != nil {
		return availability.Result{}, err
	}

	return s.checker.Check(ctx, availability.Request{
		Date:      date,
		Window:    window,
		CourtID:   courtID,
		Equipment: equipment,
		CoachID:   coachID,
	})
}

// ListSlots перечисляет слоты дня с аннотациями доступности.
func (s *BookingService) ListSlots(ctx context.Context, date time.Time, courtID int64, equipment []models.BookingEquipment, coachID int64) ([]slots.Slot, error) {
	if err := validateEquipment(equipment); err != nil {
		return nil, err
	}
	if _, err := s.catalog.Court(ctx, courtID); err != nil {
		return nil, err
	}
	return s.generator.List(ctx, date, courtID, equipment, coachID)
}

// PreviewPricing считает стоимость без создания брони.
func (s *BookingService) PreviewPricing(ctx context.Context, courtID int64, equipment []models.BookingEquipment, coachID int64, date time.Time, start, end string) (*models.Breakdown, error) {
	window, err := timeutil.ParseWindow(start, end)
	if err != nil {
		return nil, newValidationError("%s", err.Error())
	}
	if err := validateEquipment(equipment); err != nil {
		return nil, err
	}

	court, err := s.catalog.Court(ctx, courtID)
	if err != nil {
		return nil, err
	}

	lines := make([]pricing.Line, 0, len(equipment))
	for _, line := range equipment {
		item, err := s.catalog.Equipment(ctx, line.EquipmentID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, pricing.Line{Equipment: item, Quantity: line.Quantity})
	}

	var coach *models.Coach
	if coachID != 0 {
		resolved, err := s.catalog.Coach(ctx, coachID)
		if err != nil {
			return nil, err
		}
		coach = &resolved
	}

	rules, err := s.catalog.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	breakdown := pricing.Calculate(court, lines, coach, rules, date, window)
	return &breakdown, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.db.GetBooking(ctx, id)
}

func (s *BookingService) UserBookings(ctx context.Context, userID int64) ([]models.Booking, error) {
	return s.db.UserBookings(ctx, userID)
}

func (s *BookingService) validateCreateRequest(req CreateBookingRequest) (timeutil.Window, error) {
	if req.UserID == 0 {
		return timeutil.Window{}, newValidationError("user id is required")
	}
	if req.Date.IsZero() {
		return timeutil.Window{}, newValidationError("booking date is required")
	}

	window, err := timeutil.ParseWindow(req.StartTime, req.EndTime)
	if err != nil {
		return timeutil.Window{}, newValidationError("%s", err.Error())
	}

	// Дата в прошлом относительно сконфигурированных часов отклоняется сразу
	today := s.clock.Now().Format(timeutil.DateLayout)
	if req.Date.Format(timeutil.DateLayout) < today {
		return timeutil.Window{}, database.ErrPastDate
	}

	if err := validateEquipment(req.Equipment); err != nil {
		return timeutil.Window{}, err
	}

	return window, nil
}

func validateEquipment(equipment []models.BookingEquipment) error {
	seen := make(map[int64]bool, len(equipment))
	for _, line := range equipment {
		if line.Quantity <= 0 {
			return newValidationError("equipment %d: quantity must be positive", line.EquipmentID)
		}
		if seen[line.EquipmentID] {
			return newValidationError("equipment %d: duplicate request line", line.EquipmentID)
		}
		seen[line.EquipmentID] = true
	}
	return nil
}

func (s *BookingService) publishBookingEvent(eventType string, booking *models.Booking) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID: booking.ID,
		Reference: booking.Reference,
		UserID:    booking.UserID,
		CourtID:   booking.CourtID,
		CoachID:   booking.CoachID,
		Date:      booking.Date.Format(timeutil.DateLayout),
		StartTime: booking.StartTime,
		EndTime:   booking.EndTime,
		Status:    booking.Status,
		Occurred:  time.Now(),
	}
	if booking.Pricing != nil {
		payload.Total = booking.Pricing.Total
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}
