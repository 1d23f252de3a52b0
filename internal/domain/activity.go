// Package domain defines the activity lifecycle for the site tracker.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/nycsbus/sitetrack/internal/geo"
)

// Status is the lifecycle state of an activity. The wire strings match the
// stored records ("In Progress" contains a space).
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusPaused     Status = "Paused"
	StatusCompleted  Status = "Completed"
	StatusVerified   Status = "Verified"
)

// Role classifies the acting user.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleVendor Role = "vendor"
	RolePublic Role = "public"
)

// User identifies the actor for a transition.
type User struct {
	Username string
	Role     Role
}

// LogEntry is one line of an activity's append-only audit trail.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
}

// TrailPoint records where the actor stood when a geofence-gated transition
// or a periodic location check succeeded. Coordinates are [lon, lat].
type TrailPoint struct {
	Timestamp   time.Time  `json:"timestamp"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Activity is one durable field-work record. Everything except Status, Logs
// and LocationTrail is immutable after creation.
type Activity struct {
	ID             string
	Title          string
	Description    string
	Vendor         string
	Site           string
	Category       string
	Status         Status
	Location       geo.Point
	GeofenceCenter geo.Point
	GeofenceRadius float64 // meters
	Logs           []LogEntry
	LocationTrail  []TrailPoint
	CreatedAt      time.Time
}

// NewActivityInput carries the creation payload.
type NewActivityInput struct {
	Title          string
	Description    string
	Vendor         string
	Site           string
	Category       string
	Location       geo.Point
	GeofenceCenter geo.Point
	GeofenceRadius float64
}

// NewActivity builds a Pending activity with the creation log entry.
func NewActivity(in NewActivityInput, creator User, now time.Time) Activity {
	return Activity{
		ID:             uuid.NewString(),
		Title:          in.Title,
		Description:    in.Description,
		Vendor:         in.Vendor,
		Site:           in.Site,
		Category:       in.Category,
		Status:         StatusPending,
		Location:       in.Location,
		GeofenceCenter: in.GeofenceCenter,
		GeofenceRadius: in.GeofenceRadius,
		Logs: []LogEntry{{
			Timestamp: now,
			User:      creator.Username,
			Action:    "Activity created.",
		}},
		CreatedAt: now,
	}
}

// clone returns a copy whose log and trail slices are detached from the
// original, so a failed write never leaves a half-mutated record behind.
func (a Activity) clone() Activity {
	out := a
	out.Logs = append([]LogEntry(nil), a.Logs...)
	out.LocationTrail = append([]TrailPoint(nil), a.LocationTrail...)
	return out
}
