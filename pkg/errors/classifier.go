package errors

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/lib/pq"
)

// Postgres SQLSTATE classes and codes the simulator treats specially
const (
	pqClassConnection      = "08" // connection_exception
	pqClassInsufficientRes = "53" // insufficient_resources
	pqClassOperatorAction  = "57" // operator_intervention, e.g. admin shutdown
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqQueryCanceled        = "57014"
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqCheckViolation       = "23514"
)

// ClassifyError maps an error onto an ErrorType. Storage errors are
// classified by SQLSTATE so that serialization and lock conflicts between
// overlapping ticks are retried rather than reported as internal failures.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorTypeInternal
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrorTypeNotFound
	}
	if errors.Is(err, sql.ErrConnDone) {
		return ErrorTypeTransient
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPQ(pqErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED:
			return ErrorTypeTransient
		case syscall.ETIMEDOUT:
			return ErrorTypeTimeout
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return ErrorTypeTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "bad connection"),
		strings.Contains(msg, "temporarily unavailable"):
		return ErrorTypeTransient
	}

	return ErrorTypeInternal
}

func classifyPQ(err *pq.Error) ErrorType {
	switch string(err.Code) {
	case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
		return ErrorTypeTransient
	case pqQueryCanceled:
		return ErrorTypeTimeout
	case pqUniqueViolation:
		return ErrorTypeConflict
	case pqForeignKeyViolation, pqCheckViolation:
		return ErrorTypeValidation
	}

	switch err.Code.Class() {
	case pqClassConnection, pqClassInsufficientRes, pqClassOperatorAction:
		return ErrorTypeTransient
	}
	return ErrorTypeInternal
}

// IsTransient determines if an error type is transient
func IsTransient(errType ErrorType) bool {
	return errType == ErrorTypeTransient || errType == ErrorTypeTimeout
}

// ShouldRetry determines if an error should be retried
func ShouldRetry(err error) bool {
	return IsTransient(ClassifyError(err))
}
