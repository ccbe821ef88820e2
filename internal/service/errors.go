package service

import (
	"errors"
	"fmt"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/pkg/payment"
)

var (
	// ErrForbidden is returned when a user tries to modify another user's resource.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput wraps every request validation failure.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidAmount は寄付金額が 0 以下の場合のエラー
	ErrInvalidAmount error = inputError("donation amount must be greater than zero")
	// ErrAmountOverflow は目標の累計額が int64 を超える寄付
	ErrAmountOverflow error = inputError("donation amount would overflow the goal total")

	ErrGoalClosed        = errors.New("goal is no longer accepting donations")
	ErrGoalHasDonations  = errors.New("goal has donations")
	ErrRewardUnavailable = errors.New("reward unavailable")
	ErrAlreadySubscribed = errors.New("user already has an open subscription")
	ErrInvalidTransition = errors.New("invalid subscription transition")
	ErrSamePlan          = errors.New("subscription is already on this plan")
	ErrEmailTaken        = errors.New("email already registered")
	// ErrInvalidCredentials はメールアドレス・パスワードのどちらが誤っていても同じエラーを返す
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// inputError is a fixed-message validation failure matching ErrInvalidInput.
type inputError string

func (e inputError) Error() string { return string(e) }

func (e inputError) Is(target error) bool { return target == ErrInvalidInput }

// ValidationError lists the request fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %v", e.Fields)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalidField(field, reason string) error {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// TransitionError is returned for an illegal subscription status change.
type TransitionError struct {
	From model.SubscriptionStatus
	To   model.SubscriptionStatus
	Op   string
}

func (e *TransitionError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: cannot %s a %s subscription", ErrInvalidTransition, e.Op, e.From)
	}
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// PaymentError wraps a gateway failure.
type PaymentError struct {
	Provider  payment.Provider
	Operation string
	Err       error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment %s/%s: %v", e.Provider, e.Operation, e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }

// Declined reports whether the gateway refused the charge.
func (e *PaymentError) Declined() bool {
	return errors.Is(e.Err, payment.ErrDeclined)
}
