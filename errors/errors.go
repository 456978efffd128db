package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthentication  = fmt.Errorf("authentication failed")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrAuthorization   = fmt.Errorf("not authorized")
	ErrNotFound        = fmt.Errorf("not found")
	ErrTransientStore  = fmt.Errorf("store unavailable")
	ErrRateLimited     = fmt.Errorf("too many messages")

	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrSendBufferFull   = fmt.Errorf("connection buffer exceeded")
)

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// Code is the stable identifier sent to clients in acks and error bodies.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrAuthentication):
		return "authentication_error"
	case stderrors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case stderrors.Is(err, ErrAuthorization):
		return "authorization_error"
	case stderrors.Is(err, ErrNotFound):
		return "not_found"
	case stderrors.Is(err, ErrRateLimited):
		return "rate_limited"
	case stderrors.Is(err, ErrTransientStore):
		return "transient_store_error"
	default:
		return "internal_error"
	}
}

func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case "authentication_error":
		return http.StatusUnauthorized
	case "invalid_argument":
		return http.StatusBadRequest
	case "authorization_error":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "rate_limited":
		return http.StatusTooManyRequests
	case "transient_store_error":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage hides internal details of store failures from clients.
func PublicMessage(err error) string {
	switch Code(err) {
	case "transient_store_error":
		return "message could not be stored, please retry"
	case "internal_error":
		return "unexpected error"
	default:
		return err.Error()
	}
}
