package errx

import (
	"context"
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// WrapRedis maps Redis errors to AppError with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return &AppError{Err: errors.Join(ErrNotFound, err), Status: http.StatusNotFound, Kind: KindCollaborator, Message: RedisNotFoundMessage}
	}
	return &AppError{Err: err, Status: http.StatusBadGateway, Kind: KindCollaborator, Message: RedisErrorMessage}
}

// WrapFirestore maps gRPC status codes returned by Firestore.
func WrapFirestore(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return &AppError{Err: errors.Join(ErrNotFound, err), Status: http.StatusNotFound, Kind: KindCollaborator, Message: FirestoreErrorMessage}
	case codes.DeadlineExceeded, codes.Unavailable:
		return &AppError{Err: err, Status: http.StatusServiceUnavailable, Kind: KindCollaborator, Message: FirestoreErrorMessage}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Err: err, Status: http.StatusServiceUnavailable, Kind: KindCollaborator, Message: FirestoreErrorMessage}
	}
	return &AppError{Err: err, Status: http.StatusBadGateway, Kind: KindCollaborator, Message: FirestoreErrorMessage}
}

// WrapSQL maps gorm errors.
func WrapSQL(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &AppError{Err: errors.Join(ErrNotFound, err), Status: http.StatusNotFound, Kind: KindCollaborator, Message: SQLErrorMessage}
	}
	return &AppError{Err: err, Status: http.StatusBadGateway, Kind: KindCollaborator, Message: SQLErrorMessage}
}

// WrapOracle wraps a completion model failure.
func WrapOracle(err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Err: err, Status: http.StatusBadGateway, Kind: KindCollaborator, Message: OracleErrorMessage}
}

// WrapMessenger wraps an outbound delivery failure.
func WrapMessenger(err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Err: err, Status: http.StatusBadGateway, Kind: KindCollaborator, Message: MessengerErrorMessage}
}
