package services

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrIneligibleTender = errors.New("tender is not open for bidding")
	ErrDuplicateBid     = errors.New("contractor has already submitted a bid for this tender")
	ErrInvalidState     = errors.New("invalid state")
	ErrConflict         = errors.New("record was modified concurrently, try again")
)

// FieldError - ошибка конкретного поля входных данных
type FieldError struct {
	Field   string
	Message string
}

// ValidationError собирает все нарушения сразу, а не только первое
type ValidationError struct {
	Fields []FieldError
}

func NewValidationError(flds ...FieldError) error {
	return &ValidationError{Fields: flds}
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// FieldMap - поля в виде map для тела ответа, несколько нарушений
// одного поля склеиваются через "; "
func (e *ValidationError) FieldMap() map[string]string {
	m := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if prev, ok := m[f.Field]; ok {
			m[f.Field] = prev + "; " + f.Message
			continue
		}
		m[f.Field] = f.Message
	}
	return m
}

func forbidden(msg string) error {
	return errors.Wrap(ErrForbidden, msg)
}

func invalidState(msg string) error {
	return errors.Wrap(ErrInvalidState, msg)
}
