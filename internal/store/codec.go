package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nycsbus/sitetrack/internal/domain"
	"github.com/nycsbus/sitetrack/internal/geo"
)

// feature is the on-the-wire form of an activity: a GeoJSON-style Feature
// whose geometry is the job site and whose properties carry everything else.
// All coordinate arrays are [lon, lat].
type feature struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Geometry   geometry   `json:"geometry"`
	Properties properties `json:"properties"`
}

type geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type properties struct {
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Vendor         string              `json:"vendor"`
	Site           string              `json:"site"`
	Category       string              `json:"category"`
	Status         string              `json:"status"`
	CreatedAt      time.Time           `json:"createdAt"`
	GeofenceCenter [2]float64          `json:"geofenceCenter"`
	GeofenceRadius float64             `json:"geofenceRadius"`
	Logs           []domain.LogEntry   `json:"logs"`
	LocationTrail  []domain.TrailPoint `json:"locationTrail,omitempty"`
}

// EncodeActivity serialises an activity to its stored document form.
func EncodeActivity(act domain.Activity) ([]byte, error) {
	f := feature{
		ID:   act.ID,
		Type: "Feature",
		Geometry: geometry{
			Type:        "Point",
			Coordinates: [2]float64{act.Location.Lon, act.Location.Lat},
		},
		Properties: properties{
			Title:          act.Title,
			Description:    act.Description,
			Vendor:         act.Vendor,
			Site:           act.Site,
			Category:       act.Category,
			Status:         string(act.Status),
			CreatedAt:      act.CreatedAt,
			GeofenceCenter: [2]float64{act.GeofenceCenter.Lon, act.GeofenceCenter.Lat},
			GeofenceRadius: act.GeofenceRadius,
			Logs:           act.Logs,
			LocationTrail:  act.LocationTrail,
		},
	}
	return json.MarshalIndent(f, "", "  ")
}

// DecodeActivity parses a stored document back into an activity.
func DecodeActivity(data []byte) (domain.Activity, error) {
	var f feature
	if err := json.Unmarshal(data, &f); err != nil {
		return domain.Activity{}, fmt.Errorf("decode activity: %w", err)
	}
	if f.ID == "" {
		return domain.Activity{}, fmt.Errorf("decode activity: missing id")
	}
	return domain.Activity{
		ID:          f.ID,
		Title:       f.Properties.Title,
		Description: f.Properties.Description,
		Vendor:      f.Properties.Vendor,
		Site:        f.Properties.Site,
		Category:    f.Properties.Category,
		Status:      domain.Status(f.Properties.Status),
		Location: geo.Point{
			Lat: f.Geometry.Coordinates[1],
			Lon: f.Geometry.Coordinates[0],
		},
		GeofenceCenter: geo.Point{
			Lat: f.Properties.GeofenceCenter[1],
			Lon: f.Properties.GeofenceCenter[0],
		},
		GeofenceRadius: f.Properties.GeofenceRadius,
		Logs:           f.Properties.Logs,
		LocationTrail:  f.Properties.LocationTrail,
		CreatedAt:      f.Properties.CreatedAt,
	}, nil
}
