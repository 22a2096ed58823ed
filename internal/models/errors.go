package models

import (
	"errors"
	"fmt"
)

// Błędy domenowe zwracane przez warstwę wypożyczeń i magazyny danych.
// Wszystkie są odwracalne i mogą zostać pokazane użytkownikowi.
var (
	ErrNotFound               = errors.New("nie znaleziono")
	ErrBookUnavailable        = errors.New("książka jest obecnie niedostępna")
	ErrDuplicateActiveRequest = errors.New("masz już aktywną prośbę o tę książkę")
	ErrStaleRequest           = errors.New("prośba nie oczekuje już na decyzję")
	ErrConstraintViolation    = errors.New("naruszenie ograniczenia unikalności")
	ErrPermissionDenied       = errors.New("brak uprawnień")
	ErrInvalidInput           = errors.New("nieprawidłowe dane")
)

// InvalidInput opakowuje ErrInvalidInput czytelnym komunikatem
func InvalidInput(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrInvalidInput)
}

// IsRecoverable mówi czy błąd należy do taksonomii domenowej.
// Pozostałe błędy to awarie infrastruktury (np. niedostępna baza).
func IsRecoverable(err error) bool {
	for _, target := range []error{
		ErrNotFound,
		ErrBookUnavailable,
		ErrDuplicateActiveRequest,
		ErrStaleRequest,
		ErrConstraintViolation,
		ErrPermissionDenied,
		ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
