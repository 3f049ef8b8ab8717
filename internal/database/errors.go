package database

import "errors"

var (
	// ErrNotAvailable ресурс занят на момент финальной атомарной проверки
	ErrNotAvailable = errors.New("resource not available for requested window")

	// ErrBookingNotFound бронирование с таким ID не существует
	ErrBookingNotFound = errors.New("booking not found")

	// ErrNotOwner попытка отмены чужого бронирования
	ErrNotOwner = errors.New("booking belongs to another user")

	// ErrAlreadyCancelled бронирование уже отменено
	ErrAlreadyCancelled = errors.New("booking already cancelled")

	// ErrWaitlistNotFound запись листа ожидания не существует
	ErrWaitlistNotFound = errors.New("waitlist entry not found")

	// ErrPastDate дата бронирования в прошлом
	ErrPastDate = errors.New("booking date is in the past")
)
