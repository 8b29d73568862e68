package quote

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means the provider credential is missing.
	ErrNotConfigured = errors.New("quote provider not configured")

	// ErrPriceUnavailable means the batch succeeded but had no entry for a symbol.
	ErrPriceUnavailable = errors.New("price unavailable")
)

// UpstreamError is a non-2xx response from the provider.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("quote provider returned status %d", e.Status)
	}
	return fmt.Sprintf("quote provider returned status %d: %s", e.Status, e.Body)
}

// TransportError wraps network failures, timeouts and open circuit breakers.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "quote transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError wraps a malformed provider payload.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "quote decode: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// unavailable builds the per-symbol PriceUnavailable failure.
func unavailable(symbol string) error {
	return fmt.Errorf("%w for %s", ErrPriceUnavailable, symbol)
}

// Kind classifies err for metrics and HTTP status mapping.
func Kind(err error) string {
	var (
		up  *UpstreamError
		tr  *TransportError
		dec *DecodeError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrPriceUnavailable):
		return "unavailable"
	case errors.As(err, &up):
		return "upstream"
	case errors.As(err, &tr):
		return "transport"
	case errors.As(err, &dec):
		return "decode"
	default:
		return "other"
	}
}
