package exchange

import (
	"errors"
	"fmt"
)

var (
	// ErrRateNotFound is returned when the response lacks the target currency.
	ErrRateNotFound = errors.New("exchange: rate not found")
	// ErrMalformedResponse is returned when the body is not the expected JSON.
	ErrMalformedResponse = errors.New("exchange: malformed response")
)

// StatusError reports a non-success HTTP status from the rate service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("exchange: unexpected status %d: %s", e.Code, e.Body)
}

// APIError reports a well-formed error document from the rate service,
// e.g. "invalid-key" or "unsupported-code".
type APIError struct {
	Type string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange: api error %q", e.Type)
}
