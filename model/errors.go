package model

import (
	"fmt"
	"net/http"

	"emperror.dev/errors"
)

// ErrRateLimited is wrapped by errors caused by the github rate limit
var ErrRateLimited = errors.New("github rate limit reached")

// StatusError is returned when github answers a page fetch with anything but 200
type StatusError struct {
	StatusCode int
	Body       string
	Err        error // ErrRateLimited when the status comes from the rate limit
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return e.Err }

// DecodeError is returned when a page body is not a valid list of repositories
type DecodeError struct {
	Page int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unable to decode repositories of page %d: %v", e.Page, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError is returned when the HTTP exchange itself failed
type TransportError struct {
	Page int
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("unable to fetch page %d: %v", e.Page, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAPIError converts a retrieval error into the payload returned by the API
// along with the HTTP status to answer with
func NewAPIError(errReason error) (int, APIError) {
	var statusErr *StatusError
	var decodeErr *DecodeError
	var transportErr *TransportError

	switch {
	case errors.Is(errReason, ErrRateLimited):
		return http.StatusTooManyRequests, APIError{
			Code:    "RATE_LIMIT_REACHED",
			Message: "github rate limit reached. consider using a token to increase the limit or wait few minutes and try again",
		}

	case errors.As(errReason, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound, APIError{
			Code:    "ORGANIZATION_NOT_FOUND",
			Message: "organization not found on github",
		}

	case errors.As(errReason, &statusErr):
		return http.StatusBadGateway, APIError{
			Code:    "FETCH_ERROR",
			Message: fmt.Sprintf("github answered with status %d", statusErr.StatusCode),
		}

	case errors.As(errReason, &decodeErr):
		return http.StatusBadGateway, APIError{
			Code:    "INVALID_DATA_FOUND",
			Message: "github returned repositories that could not be decoded",
		}

	case errors.As(errReason, &transportErr):
		return http.StatusBadGateway, APIError{
			Code:    "NETWORK_ERROR",
			Message: "unable to reach github. try again later",
		}

	default:
		return http.StatusInternalServerError, APIError{
			Code:    "GENERIC_ERROR",
			Message: "internal server error. contact our support with the reason code for assistance",
		}
	}
}
