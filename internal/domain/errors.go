package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition indicates the activity's current status is not a
	// valid source for the requested transition.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrUnauthorized indicates the acting user's role does not permit the
	// requested transition.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrLocationRequired indicates a geofence-gated transition was attempted
	// without an observed location.
	ErrLocationRequired = errors.New("location required")
)

// GeofenceError rejects a gated transition attempted from outside the
// activity's authorized radius. It carries the measured distance so callers
// can report how far away the actor was.
type GeofenceError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *GeofenceError) Error() string {
	return fmt.Sprintf("outside geofence: %.0fm away, radius %.0fm", e.DistanceMeters, e.RadiusMeters)
}
