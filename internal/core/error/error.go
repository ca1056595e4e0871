package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// FirestoreErrorMessage describes Firestore related failures.
	FirestoreErrorMessage = "firestore operation failed"
	// SQLErrorMessage describes relational store failures.
	SQLErrorMessage = "database operation failed"
	// OracleErrorMessage describes completion model failures.
	OracleErrorMessage = "completion model failed"
	// MessengerErrorMessage describes outbound delivery failures.
	MessengerErrorMessage = "message delivery failed"
	// InventoryConflictMessage describes a cart that could not be committed.
	InventoryConflictMessage = "insufficient stock"
	// RateLimitedMessage describes a rejected inbound message.
	RateLimitedMessage = "rate limit exceeded"
)

// Kind classifies an AppError for the dialogue layer.
type Kind string

const (
	KindInternal          Kind = "internal"
	KindUserInput         Kind = "user_input"
	KindCollaborator      Kind = "collaborator"
	KindInventoryConflict Kind = "inventory_conflict"
	KindRateLimited       Kind = "rate_limited"
)

var (
	// ErrNotFound is returned by stores when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrProductNotFound is returned when a stock mutation targets a missing product.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned when a conditional decrement is refused.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// AppError wraps an underlying error with an HTTP status, a kind and a safe message.
type AppError struct {
	Err     error
	Status  int
	Kind    Kind
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Kind:    KindInternal,
		Message: message,
	}
}

// NewKind creates an AppError of the given kind.
func NewKind(kind Kind, err error, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  statusForKind(kind),
		Kind:    kind,
		Message: message,
	}
}

// InventoryConflict wraps a refused cart commit.
func InventoryConflict(err error) error {
	return NewKind(KindInventoryConflict, err, InventoryConflictMessage)
}

// Collaborator wraps a failure of an external dependency with a message.
func Collaborator(err error, message string) error {
	if err == nil {
		return nil
	}
	return NewKind(KindCollaborator, err, message)
}

// KindOf returns the kind of the first AppError in the chain, or KindInternal.
func KindOf(err error) Kind {
	var app *AppError
	if errors.As(err, &app) {
		return app.Kind
	}
	return KindInternal
}

// IsInventoryConflict reports whether err represents refused stock.
func IsInventoryConflict(err error) bool {
	return KindOf(err) == KindInventoryConflict || errors.Is(err, ErrInsufficientStock)
}

// StatusOf returns the HTTP status carried by err, defaulting to 500.
func StatusOf(err error) int {
	var app *AppError
	if errors.As(err, &app) && app.Status != 0 {
		return app.Status
	}
	return http.StatusInternalServerError
}

func statusForKind(kind Kind) int {
	switch kind {
	case KindUserInput:
		return http.StatusBadRequest
	case KindCollaborator:
		return http.StatusBadGateway
	case KindInventoryConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Is is errors.Is, re-exported so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
