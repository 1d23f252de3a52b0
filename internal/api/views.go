package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nycsbus/sitetrack/internal/domain"
	"github.com/nycsbus/sitetrack/internal/geo"
	"github.com/nycsbus/sitetrack/internal/store"
)

// CreateActivityRequest is the payload for POST /v1/activities.
type CreateActivityRequest struct {
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Vendor               string   `json:"vendor"`
	Site                 string   `json:"site"`
	Category             string   `json:"category"`
	Latitude             float64  `json:"latitude"`
	Longitude            float64  `json:"longitude"`
	GeofenceRadiusMeters float64  `json:"geofence_radius_meters"`
	GeofenceLatitude     *float64 `json:"geofence_latitude,omitempty"`
	GeofenceLongitude    *float64 `json:"geofence_longitude,omitempty"`
}

// Validate ensures request correctness.
func (r CreateActivityRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(r.Vendor) == "" {
		return errors.New("vendor is required")
	}
	if r.Latitude < -90 || r.Latitude > 90 {
		return errors.New("latitude must be within [-90, 90]")
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return errors.New("longitude must be within [-180, 180]")
	}
	if r.GeofenceRadiusMeters <= 0 {
		return errors.New("geofence_radius_meters must be > 0")
	}
	if (r.GeofenceLatitude == nil) != (r.GeofenceLongitude == nil) {
		return errors.New("geofence_latitude and geofence_longitude must be set together")
	}
	return nil
}

// CreateActivityResponse describes the response body for create.
type CreateActivityResponse struct {
	ActivityID   string `json:"activity_id"`
	Path         string `json:"path"`
	Status       string `json:"status"`
	VersionToken string `json:"version_token"`
}

// TransitionRequest is the payload for POST /v1/activities/{id}/transitions.
type TransitionRequest struct {
	Action    string   `json:"action"`
	Comment   string   `json:"comment,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func (r TransitionRequest) transition() (domain.Transition, error) {
	switch t := domain.Transition(strings.ToLower(strings.TrimSpace(r.Action))); t {
	case domain.TransitionStart, domain.TransitionPause, domain.TransitionResume,
		domain.TransitionComplete, domain.TransitionVerify, domain.TransitionComment:
		return t, nil
	default:
		return "", errors.New("unknown action")
	}
}

func (r TransitionRequest) observed() (*geo.Point, error) {
	if (r.Latitude == nil) != (r.Longitude == nil) {
		return nil, errors.New("latitude and longitude must be set together")
	}
	if r.Latitude == nil {
		return nil, nil
	}
	return &geo.Point{Lat: *r.Latitude, Lon: *r.Longitude}, nil
}

// CommentRequest is the payload for POST /v1/activities/{id}/comments.
type CommentRequest struct {
	Text string `json:"text"`
}

// ActivityView exposes full details about an activity, including its storage
// path and version token so clients can retry on conflict and share links.
type ActivityView struct {
	ActivityID           string              `json:"activity_id"`
	Path                 string              `json:"path"`
	Title                string              `json:"title"`
	Description          string              `json:"description"`
	Vendor               string              `json:"vendor"`
	Site                 string              `json:"site"`
	Category             string              `json:"category"`
	Status               string              `json:"status"`
	Latitude             float64             `json:"latitude"`
	Longitude            float64             `json:"longitude"`
	GeofenceLatitude     float64             `json:"geofence_latitude"`
	GeofenceLongitude    float64             `json:"geofence_longitude"`
	GeofenceRadiusMeters float64             `json:"geofence_radius_meters"`
	CreatedAt            time.Time           `json:"created_at"`
	Logs                 []domain.LogEntry   `json:"logs"`
	LocationTrail        []domain.TrailPoint `json:"location_trail,omitempty"`
	VersionToken         string              `json:"version_token"`
	AllowedTransitions   []string            `json:"allowed_transitions"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items []ActivityView `json:"items"`
}

// ExportResponse is the single-document dump of every record.
type ExportResponse struct {
	ExportedAt time.Time      `json:"exported_at"`
	Count      int            `json:"count"`
	Activities []ActivityView `json:"activities"`
}

// GeofenceViolationResponse carries the measured distance so the caller can
// report "you are Xm away".
type GeofenceViolationResponse struct {
	Type           string  `json:"type"`
	Detail         string  `json:"detail"`
	DistanceMeters float64 `json:"distance_meters"`
	RadiusMeters   float64 `json:"radius_meters"`
}

// toActivityView projects a record for the given viewer role. The
// allowed-transitions list is derived from the transition table, never
// recomputed by hand.
func toActivityView(rec store.Record, role domain.Role) ActivityView {
	act := rec.Activity

	var allowed []string
	for _, t := range []domain.Transition{
		domain.TransitionStart, domain.TransitionPause, domain.TransitionResume,
		domain.TransitionComplete, domain.TransitionVerify, domain.TransitionComment,
	} {
		if domain.Allowed(t, act.Status, role) {
			allowed = append(allowed, string(t))
		}
	}

	return ActivityView{
		ActivityID:           act.ID,
		Path:                 rec.Path,
		Title:                act.Title,
		Description:          act.Description,
		Vendor:               act.Vendor,
		Site:                 act.Site,
		Category:             act.Category,
		Status:               string(act.Status),
		Latitude:             act.Location.Lat,
		Longitude:            act.Location.Lon,
		GeofenceLatitude:     act.GeofenceCenter.Lat,
		GeofenceLongitude:    act.GeofenceCenter.Lon,
		GeofenceRadiusMeters: act.GeofenceRadius,
		CreatedAt:            act.CreatedAt,
		Logs:                 act.Logs,
		LocationTrail:        act.LocationTrail,
		VersionToken:         rec.Token,
		AllowedTransitions:   allowed,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
