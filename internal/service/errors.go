package service

import (
	"fmt"
	"strings"

	"courtbook/internal/availability"
)

// ValidationError некорректный вход: дата, окно, количество.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func newValidationError(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// ConflictError отказ атомарного commit-а: ресурс занят. Несет список
// конфликтов, чтобы вызывающая сторона могла назвать блокирующий ресурс
// и предложить лист ожидания.
type ConflictError struct {
	Conflicts []availability.Conflict
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return "booking conflict: resource not available"
	}
	details := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		details = append(details, c.Detail)
	}
	return "booking conflict: " + strings.Join(details, "; ")
}
