package domain

import (
	"fmt"
	"time"

	"github.com/nycsbus/sitetrack/internal/geo"
)

// Transition names a lifecycle operation on an activity.
type Transition string

const (
	TransitionStart    Transition = "start"
	TransitionPause    Transition = "pause"
	TransitionResume   Transition = "resume"
	TransitionComplete Transition = "complete"
	TransitionVerify   Transition = "verify"
	TransitionComment  Transition = "comment"
)

// rule is one row of the transition table: allowed source states, the
// resulting status (empty means unchanged), the role requirement, whether the
// geofence gate applies, and the audit log action text.
type rule struct {
	from      []Status
	to        Status
	adminOnly bool
	geofenced bool
	action    string
}

// transitionTable is the single authority on legality. UI affordances and
// HTTP responses are projections of this table, never separate logic.
var transitionTable = map[Transition]rule{
	TransitionStart:    {from: []Status{StatusPending}, to: StatusInProgress, geofenced: true, action: "Work Started"},
	TransitionPause:    {from: []Status{StatusInProgress}, to: StatusPaused, action: "Work Paused"},
	TransitionResume:   {from: []Status{StatusPaused}, to: StatusInProgress, geofenced: true, action: "Work Resumed"},
	TransitionComplete: {from: []Status{StatusInProgress, StatusPaused}, to: StatusCompleted, geofenced: true, action: "Work Completed"},
	TransitionVerify:   {from: []Status{StatusCompleted}, to: StatusVerified, adminOnly: true, action: "Work Verified"},
	TransitionComment:  {action: "Comment: %s"}, // any status, status unchanged
}

// Allowed reports whether the transition would be legal for an activity in
// the given status with the given role. Derived from the table so callers
// building button state cannot diverge from Apply.
func Allowed(t Transition, status Status, role Role) bool {
	r, ok := transitionTable[t]
	if !ok {
		return false
	}
	if !roleSatisfies(role, r) {
		return false
	}
	return statusSatisfies(status, r)
}

// Input carries everything Apply needs beyond the activity itself.
type Input struct {
	Transition Transition
	Actor      User
	// Observed is the actor's sampled location; nil when unavailable.
	Observed *geo.Point
	// Comment is the free text for TransitionComment.
	Comment string
}

// Machine validates and applies lifecycle transitions.
type Machine struct {
	now func() time.Time
}

// NewMachine constructs a Machine using wall-clock time.
func NewMachine() *Machine {
	return &Machine{now: time.Now}
}

// NewMachineAt constructs a Machine with an injected clock, for tests.
func NewMachineAt(now func() time.Time) *Machine {
	return &Machine{now: now}
}

// Apply validates the transition against the table and returns the mutated
// activity. All validation happens before any mutation: on error the input
// activity is untouched and must not be written. On success exactly one log
// entry is appended, the status is updated for status-changing transitions,
// and geofence-gated transitions append one trail point.
func (m *Machine) Apply(activity Activity, in Input) (Activity, error) {
	r, ok := transitionTable[in.Transition]
	if !ok {
		return Activity{}, fmt.Errorf("%w: unknown transition %q", ErrIllegalTransition, in.Transition)
	}

	// Role is checked before status: a viewer who could never perform the
	// transition learns nothing about the record's state.
	if !roleSatisfies(in.Actor.Role, r) {
		return Activity{}, fmt.Errorf("%w: role %s may not %s", ErrUnauthorized, in.Actor.Role, in.Transition)
	}

	if !statusSatisfies(activity.Status, r) {
		return Activity{}, fmt.Errorf("%w: cannot %s from %s", ErrIllegalTransition, in.Transition, activity.Status)
	}

	if r.geofenced {
		if in.Observed == nil {
			return Activity{}, ErrLocationRequired
		}
		fence := geo.WithinFence(*in.Observed, activity.GeofenceCenter, activity.GeofenceRadius)
		if !fence.Within {
			return Activity{}, &GeofenceError{
				DistanceMeters: fence.DistanceMeters,
				RadiusMeters:   activity.GeofenceRadius,
			}
		}
	}

	now := m.now().UTC()
	out := activity.clone()
	if r.to != "" {
		out.Status = r.to
	}

	action := r.action
	if in.Transition == TransitionComment {
		action = fmt.Sprintf(r.action, in.Comment)
	}
	out.Logs = append(out.Logs, LogEntry{Timestamp: now, User: in.Actor.Username, Action: action})

	if r.geofenced {
		out.LocationTrail = append(out.LocationTrail, TrailPoint{
			Timestamp:   now,
			Coordinates: [2]float64{in.Observed.Lon, in.Observed.Lat},
		})
	}

	return out, nil
}

// AppendLocationCheck appends the periodic location-check log entry and trail
// point. It is the only mutation besides Apply and is valid only while work
// is in progress.
func AppendLocationCheck(activity Activity, observed geo.Point, now time.Time) (Activity, error) {
	if activity.Status != StatusInProgress {
		return Activity{}, fmt.Errorf("%w: location check from %s", ErrIllegalTransition, activity.Status)
	}
	out := activity.clone()
	now = now.UTC()
	out.Logs = append(out.Logs, LogEntry{Timestamp: now, User: "System", Action: "Periodic location check"})
	out.LocationTrail = append(out.LocationTrail, TrailPoint{
		Timestamp:   now,
		Coordinates: [2]float64{observed.Lon, observed.Lat},
	})
	return out, nil
}

func roleSatisfies(role Role, r rule) bool {
	if r.adminOnly {
		return role == RoleAdmin
	}
	return role == RoleAdmin || role == RoleVendor
}

func statusSatisfies(status Status, r rule) bool {
	if len(r.from) == 0 {
		return true
	}
	for _, s := range r.from {
		if s == status {
			return true
		}
	}
	return false
}
