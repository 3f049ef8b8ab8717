package service

import (
	"context"
	"time"

	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/timeutil"

	"github.com/google/uuid"
)

// JoinWaitlist ставит пользователя в очередь по точному ключу
// (корт, дата, окно) и возвращает созданную запись с позицией.
func (s *BookingService) JoinWaitlist(ctx context.Context, userID int64, date time.Time, start, end string, courtID int64) (*models.WaitlistEntry, error) {
	if userID == 0 {
		return nil, newValidationError("user id is required")
	}
	if _, err := timeutil.ParseWindow(start, end); err != nil {
		return nil, newValidationError("%s", err.Error())
	}
	if _, err := s.catalog.Court(ctx, courtID); err != nil {
		return nil, err
	}

	entry := &models.WaitlistEntry{
		Reference: uuid.NewString(),
		UserID:    userID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		CourtID:   courtID,
	}
	if err := s.db.JoinWaitlist(ctx, entry); err != nil {
		return nil, err
	}

	metrics.IncWaitlistJoin()
	s.publishWaitlistEvent(events.EventWaitlistJoined, entry)
	s.logger.Info().
		Int64("entry_id", entry.ID).
		Int64("court_id", courtID).
		Int("position", entry.Position).
		Msg("waitlist entry created")

	return entry, nil
}

// PromoteWaitlist переводит самую раннюю ожидающую запись ключа в notified
// со сроком жизни уведомления. Пустая очередь — nil без ошибки. Соответствие
// освободившегося окна исходному запросу не перепроверяется: ключ точный.
func (s *BookingService) PromoteWaitlist(ctx context.Context, courtID int64, date time.Time, window timeutil.Window) (*models.WaitlistEntry, error) {
	entry, err := s.db.PromoteOldest(ctx, courtID, date, window, s.waitlistTTL)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	metrics.IncWaitlistPromotion()
	s.publishWaitlistEvent(events.EventWaitlistNotified, entry)
	s.logger.Info().
		Int64("entry_id", entry.ID).
		Int64("court_id", courtID).
		Time("expires_at", *entry.ExpiresAt).
		Msg("waitlist entry notified")

	return entry, nil
}

// LeaveWaitlist удаляет запись безусловно, независимо от ее статуса.
func (s *BookingService) LeaveWaitlist(ctx context.Context, entryID int64) error {
	return s.db.RemoveWaitlistEntry(ctx, entryID)
}

// ListWaitlist возвращает очередь по ключу. Перед чтением лениво
// сверяет просроченные notified записи, чтобы очередь была корректной
// даже при выключенном фоновом свипере.
func (s *BookingService) ListWaitlist(ctx context.Context, courtID int64, date time.Time, start, end string) ([]models.WaitlistEntry, error) {
	window, err := timeutil.ParseWindow(start, end)
	if err != nil {
		return nil, newValidationError("%s", err.Error())
	}

	if _, err := s.ExpireOverdue(ctx); err != nil {
		s.logger.Error().Err(err).Msg("lazy waitlist reconciliation failed")
	}

	return s.db.WaitlistEntries(ctx, courtID, date, window)
}

// ExpireOverdue переводит все notified записи с истекшим сроком в expired.
// Вызывается фоновым свипером и лениво на чтении очереди.
func (s *BookingService) ExpireOverdue(ctx context.Context) (int, error) {
	expired, err := s.db.ExpireNotifiedBefore(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}

	for i := range expired {
		metrics.IncWaitlistExpiry()
		s.publishWaitlistEvent(events.EventWaitlistExpired, &expired[i])
	}
	return len(expired), nil
}

func (s *BookingService) publishWaitlistEvent(eventType string, entry *models.WaitlistEntry) {
	if s.eventBus == nil {
		return
	}

	payload := events.WaitlistEventPayload{
		EntryID:    entry.ID,
		Reference:  entry.Reference,
		UserID:     entry.UserID,
		CourtID:    entry.CourtID,
		Date:       entry.Date.Format(timeutil.DateLayout),
		StartTime:  entry.StartTime,
		EndTime:    entry.EndTime,
		Status:     entry.Status,
		Position:   entry.Position,
		NotifiedAt: entry.NotifiedAt,
		ExpiresAt:  entry.ExpiresAt,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("entry_id", entry.ID).Msg("publish event error")
	}
}
