package repository

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique key (email, slug, …) is already taken.
var ErrDuplicate = errors.New("duplicate")

// ErrAlreadyRefunded is returned when refunding a donation twice.
var ErrAlreadyRefunded = errors.New("already refunded")

// ErrOpenSubscription is returned when a user already has a subscription
// that has not reached a terminal status.
var ErrOpenSubscription = errors.New("open subscription exists")
