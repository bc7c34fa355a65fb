// Package geo models the host geolocation capability: request options,
// positions, and the classified ways a position request can fail.
package geo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sinulogmap/internal/model"
)

// Options mirrors the host's one-shot position request options.
type Options struct {
	HighAccuracy bool          `json:"enableHighAccuracy"`
	Timeout      time.Duration `json:"-"`
	MaximumAge   time.Duration `json:"-"`
}

// DefaultOptions always asks for a fresh high-accuracy fix within 5s.
func DefaultOptions() Options {
	return Options{
		HighAccuracy: true,
		Timeout:      5 * time.Second,
		MaximumAge:   0,
	}
}

// Position is a resolved fix. Accuracy is in metres, 0 when unknown.
type Position struct {
	model.LatLng
	Accuracy float64 `json:"accuracy,omitempty"`
}

// ErrorKind classifies a failed position request.
type ErrorKind string

const (
	PermissionDenied    ErrorKind = "permission_denied"
	PositionUnavailable ErrorKind = "position_unavailable"
	Timeout             ErrorKind = "timeout"
	Unknown             ErrorKind = "unknown"
	Unsupported         ErrorKind = "unsupported"
)

// Message is the user-facing text shown for the kind.
func (k ErrorKind) Message() string {
	switch k {
	case PermissionDenied:
		return "Please enable location access in your browser settings to get directions"
	case PositionUnavailable:
		return "Location information is unavailable"
	case Timeout:
		return "Location request timed out"
	case Unsupported:
		return "Geolocation is not supported by your browser"
	default:
		return "An unknown error occurred"
	}
}

// KindFromCode maps the W3C GeolocationPositionError codes.
func KindFromCode(code int) ErrorKind {
	switch code {
	case 1:
		return PermissionDenied
	case 2:
		return PositionUnavailable
	case 3:
		return Timeout
	default:
		return Unknown
	}
}

// ParseKind maps a kind name back to its ErrorKind; anything else is Unknown.
func ParseKind(s string) ErrorKind {
	switch k := ErrorKind(s); k {
	case PermissionDenied, PositionUnavailable, Timeout, Unsupported:
		return k
	default:
		return Unknown
	}
}

// Error is a classified geolocation failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geolocation %s: %v", e.Kind, e.Err)
	}
	return "geolocation " + string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the kind of a geolocation error; non-geo errors are
// Unknown, context deadline is Timeout.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return Unknown
}

// ErrInvalidPosition is returned for coordinates outside WGS84 ranges.
var ErrInvalidPosition = errors.New("invalid position")

// Validate checks that the position is usable.
func (p Position) Validate() error {
	if !p.Valid() || p.Accuracy < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPosition, p.LatLng)
	}
	return nil
}

// Locator is the awaitable form of the host "get current position"
// capability.
type Locator interface {
	Locate(ctx context.Context, opts Options) (Position, error)
}

// FixedLocator always reports the same position, or Err when set.
type FixedLocator struct {
	Position Position
	Err      error
}

func (f FixedLocator) Locate(ctx context.Context, opts Options) (Position, error) {
	if f.Err != nil {
		return Position{}, f.Err
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return Position{}, &Error{Kind: KindOf(err), Err: err}
	}
	return f.Position, nil
}
