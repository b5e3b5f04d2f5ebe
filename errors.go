package contaconmigo

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusConnectionError is the status carried by an APIError when no HTTP
// response was received at all (DNS failure, timeout, offline).
const StatusConnectionError = 0

// AuthReason classifies why an authenticated request could not proceed.
type AuthReason string

const (
	// ReasonNoToken means no access token is present in the credential store.
	ReasonNoToken AuthReason = "no_token"

	// ReasonExpiredAndRefreshFailed means the local expiry check failed and
	// the refresh attempt produced no new token.
	ReasonExpiredAndRefreshFailed AuthReason = "expired_refresh_failed"

	// ReasonUnauthorized means the backend answered 401 and the single
	// refresh-and-retry cycle was already spent or produced nothing.
	ReasonUnauthorized AuthReason = "unauthorized"

	// ReasonExpired is used by proactive expiry checks performed outside a
	// dispatch, e.g. before entering a protected screen.
	ReasonExpired AuthReason = "expired"

	// ReasonLogout is a user-initiated session end.
	ReasonLogout AuthReason = "logout"
)

// AuthFailure is returned when a request requiring identity cannot be
// completed and the session must be re-established.
type AuthFailure struct {
	Reason AuthReason
	Err    error
}

func (e *AuthFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("contaconmigo: auth failure (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("contaconmigo: auth failure (%s)", e.Reason)
}

func (e *AuthFailure) Unwrap() error { return e.Err }

// APIError is a non-2xx response, or a transport failure when Status is
// StatusConnectionError.
type APIError struct {
	Status int
	Detail string
	Err    error
}

func (e *APIError) Error() string {
	if e.Status == StatusConnectionError {
		if e.Err != nil {
			return fmt.Sprintf("contaconmigo: connection error: %v", e.Err)
		}
		return "contaconmigo: connection error"
	}
	return fmt.Sprintf("contaconmigo: http %d: %s", e.Status, e.Detail)
}

func (e *APIError) Unwrap() error { return e.Err }

// Validation errors shared by the services.
var (
	ErrEmptyID       = errors.New("contaconmigo: id cannot be empty")
	ErrEmptyEmail    = errors.New("contaconmigo: email cannot be empty")
	ErrEmptyPassword = errors.New("contaconmigo: password cannot be empty")
)

// IsAuthFailure reports whether err is (or wraps) an *AuthFailure.
func IsAuthFailure(err error) bool {
	var af *AuthFailure
	return errors.As(err, &af)
}

// AuthReasonOf returns the reason of a wrapped *AuthFailure, or "".
func AuthReasonOf(err error) AuthReason {
	var af *AuthFailure
	if errors.As(err, &af) {
		return af.Reason
	}
	return ""
}

// IsConnectionError reports whether err is a transport-level failure.
func IsConnectionError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == StatusConnectionError
}

// StatusOf returns the HTTP status carried by err. Auth failures map to 401;
// errors of any other kind return -1.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	if IsAuthFailure(err) {
		return http.StatusUnauthorized
	}
	return -1
}

// UserMessage renders err as a message suitable for end users.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsAuthFailure(err) {
		return "Your session has expired. Please log in again."
	}
	var ae *APIError
	if errors.As(err, &ae) {
		switch ae.Status {
		case StatusConnectionError:
			return "Connection error. Check your internet connection."
		case http.StatusUnauthorized:
			return "Your session has expired. Please log in again."
		case http.StatusForbidden:
			return "You do not have permission to perform this action."
		case http.StatusNotFound:
			return "The requested resource was not found."
		case http.StatusInternalServerError:
			return "Internal server error. Try again later."
		}
		if ae.Detail != "" {
			return ae.Detail
		}
		return "Unknown server error."
	}
	return err.Error()
}
