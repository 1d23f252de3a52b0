// Package api exposes HTTP handlers for the site activity tracker.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/nycsbus/sitetrack/internal/auth"
	"github.com/nycsbus/sitetrack/internal/domain"
	"github.com/nycsbus/sitetrack/internal/events"
	"github.com/nycsbus/sitetrack/internal/geo"
	"github.com/nycsbus/sitetrack/internal/observability"
	"github.com/nycsbus/sitetrack/internal/store"
)

// ActivitiesPrefix is the directory all records live under in the remote store.
const ActivitiesPrefix = "activities"

// PathForID returns the storage path for an activity id.
func PathForID(id string) string {
	return ActivitiesPrefix + "/" + id + ".json"
}

// Store is the slice of the concurrent store the handlers need.
type Store interface {
	Read(ctx context.Context, path string) (*store.Record, error)
	Write(ctx context.Context, path string, act domain.Activity, token string) (string, error)
	ReadAll(ctx context.Context, prefix string) ([]store.Record, error)
}

// Handler coordinates HTTP requests with the lifecycle machine and the store.
type Handler struct {
	machine *domain.Machine
	store   Store
	events  *events.Publisher
	logger  *log.Logger
}

// NewHandler builds a Handler. The events publisher may be nil (disabled).
func NewHandler(machine *domain.Machine, st Store, publisher *events.Publisher) *Handler {
	return &Handler{
		machine: machine,
		store:   st,
		events:  publisher,
		logger:  log.New(log.Writer(), "[api] ", log.LstdFlags),
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/activities/export", h.exportActivities)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/shared/", h.sharedActivity)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.getActivity(w, r, id)
	case len(parts) == 2 && parts[1] == "transitions" && r.Method == http.MethodPost:
		h.applyTransition(w, r, id)
	case len(parts) == 2 && parts[1] == "comments" && r.Method == http.MethodPost:
		h.addComment(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	user, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}
	if user.Role != domain.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "only admins may create activities")
		return
	}

	var req CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	location := geo.Point{Lat: req.Latitude, Lon: req.Longitude}
	center := location
	if req.GeofenceLatitude != nil {
		center = geo.Point{Lat: *req.GeofenceLatitude, Lon: *req.GeofenceLongitude}
	}

	act := domain.NewActivity(domain.NewActivityInput{
		Title:          req.Title,
		Description:    req.Description,
		Vendor:         req.Vendor,
		Site:           req.Site,
		Category:       req.Category,
		Location:       location,
		GeofenceCenter: center,
		GeofenceRadius: req.GeofenceRadiusMeters,
	}, user, time.Now().UTC())

	// The uuid path makes creation collision-resistant: no existence
	// pre-check is needed before the tokenless create.
	path := PathForID(act.ID)
	token, err := h.store.Write(r.Context(), path, act, "")
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateActivityResponse{
		ActivityID:   act.ID,
		Path:         path,
		Status:       string(act.Status),
		VersionToken: token,
	})
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	user, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	records, err := h.store.ReadAll(r.Context(), ActivitiesPrefix)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(records))
	for _, rec := range records {
		// Vendors see only their own assignments.
		if user.Role == domain.RoleVendor && rec.Activity.Vendor != user.Username {
			continue
		}
		items = append(items, toActivityView(rec, user.Role))
	}

	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items})
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	rec, ok := h.loadRecord(w, r, id, user)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*rec, user.Role))
}

func (h *Handler) applyTransition(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	transition, err := req.transition()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	observed, err := req.observed()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	h.mutate(w, r, id, user, domain.Input{
		Transition: transition,
		Actor:      user,
		Observed:   observed,
		Comment:    req.Comment,
	})
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "text is required")
		return
	}

	h.mutate(w, r, id, user, domain.Input{
		Transition: domain.TransitionComment,
		Actor:      user,
		Comment:    req.Text,
	})
}

// mutate runs the read-validate-write protocol for one transition: load the
// record and its token, apply the machine, write back with the token the read
// produced. Validation failures never reach the store; a write conflict is
// surfaced for the client to re-read and retry.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, id string, user domain.User, in domain.Input) {
	rec, ok := h.loadRecord(w, r, id, user)
	if !ok {
		return
	}

	mutated, err := h.machine.Apply(rec.Activity, in)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	token, err := h.store.Write(r.Context(), rec.Path, mutated, rec.Token)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	now := time.Now().UTC()
	observability.RecordTransitionApplied(string(in.Transition), now)

	if mutated.Status != rec.Activity.Status {
		err := h.events.PublishTransition(r.Context(), events.TransitionEvent{
			ActivityID: mutated.ID,
			Path:       rec.Path,
			Action:     string(in.Transition),
			FromStatus: string(rec.Activity.Status),
			ToStatus:   string(mutated.Status),
			Actor:      user.Username,
			OccurredAt: now,
		})
		if err != nil {
			// The record is already written; the event feed is best-effort.
			h.logger.Printf("publish transition event: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, toActivityView(store.Record{Path: rec.Path, Activity: mutated, Token: token}, user.Role))
}

func (h *Handler) exportActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireAuthenticated(w, r); !ok {
		return
	}

	records, err := h.store.ReadAll(r.Context(), ActivitiesPrefix)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	views := make([]ActivityView, 0, len(records))
	for _, rec := range records {
		views = append(views, toActivityView(rec, domain.RoleAdmin))
	}

	writeJSON(w, http.StatusOK, ExportResponse{
		ExportedAt: time.Now().UTC(),
		Count:      len(views),
		Activities: views,
	})
}

// sharedActivity serves read-only access by storage path, no credentials
// required. No transitions can be applied through this surface.
func (h *Handler) sharedActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/shared/")
	if !strings.HasPrefix(path, ActivitiesPrefix+"/") || strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid share path")
		return
	}

	rec, err := h.store.Read(r.Context(), path)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
		return
	}

	writeJSON(w, http.StatusOK, toActivityView(*rec, domain.RolePublic))
}

// loadRecord reads the record for id and enforces the vendor visibility rule.
func (h *Handler) loadRecord(w http.ResponseWriter, r *http.Request, id string, user domain.User) (*store.Record, bool) {
	rec, err := h.store.Read(r.Context(), PathForID(id))
	if err != nil {
		h.writeStoreError(w, err)
		return nil, false
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
		return nil, false
	}
	if user.Role == domain.RoleVendor && rec.Activity.Vendor != user.Username {
		writeError(w, http.StatusForbidden, "forbidden", "activity is assigned to another vendor")
		return nil, false
	}
	return rec, true
}

func requireAuthenticated(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	user := auth.UserFromContext(r.Context())
	if user.Role == domain.RolePublic {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return domain.User{}, false
	}
	return user, true
}

func (h *Handler) writeTransitionError(w http.ResponseWriter, err error) {
	var gfe *domain.GeofenceError
	switch {
	case errors.As(err, &gfe):
		observability.RecordTransitionRejected("geofence_violation")
		writeJSON(w, http.StatusUnprocessableEntity, GeofenceViolationResponse{
			Type:           "geofence_violation",
			Detail:         gfe.Error(),
			DistanceMeters: gfe.DistanceMeters,
			RadiusMeters:   gfe.RadiusMeters,
		})
	case errors.Is(err, domain.ErrUnauthorized):
		observability.RecordTransitionRejected("unauthorized")
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrLocationRequired):
		observability.RecordTransitionRejected("location_required")
		writeError(w, http.StatusBadRequest, "location_required", err.Error())
	case errors.Is(err, domain.ErrIllegalTransition):
		observability.RecordTransitionRejected("illegal_transition")
		writeError(w, http.StatusConflict, "illegal_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrConflict):
		observability.RecordTransitionRejected("conflict")
		writeError(w, http.StatusConflict, "conflict", "the record changed underneath you; reload and retry")
	case errors.Is(err, store.ErrTransport):
		writeError(w, http.StatusBadGateway, "store_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}
