package domain

import "errors"

// Common domain errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrInternalServer = errors.New("internal server error")
)

// User errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrInvalidPassword   = errors.New("invalid password")
)

// Loan errors
var (
	ErrLoanNotFound     = errors.New("loan not found")
	ErrLoanLimitReached = errors.New("open loan limit reached")
	ErrLoanClosed       = errors.New("loan already closed")
	ErrVersionConflict  = errors.New("loan was modified concurrently")
)
