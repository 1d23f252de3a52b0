package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nycsbus/sitetrack/internal/domain"
)

// A document in the shape produced by earlier revisions of the tracker must
// keep decoding, spaces in status strings included.
func TestDecodeStoredDocument(t *testing.T) {
	doc := []byte(`{
  "id": "activity-2",
  "type": "Feature",
  "geometry": {"type": "Point", "coordinates": [-73.778, 40.641]},
  "properties": {
    "title": "Install Camera on Bus 4501",
    "description": "Install new 360-degree camera system.",
    "vendor": "vendor@example.com",
    "site": "JFK Depot",
    "category": "Install Equipment",
    "status": "In Progress",
    "createdAt": "2025-07-13T14:30:00Z",
    "geofenceCenter": [-73.778, 40.641],
    "geofenceRadius": 500,
    "logs": [
      {"timestamp": "2025-07-13T14:30:00Z", "user": "admin", "action": "Activity created."},
      {"timestamp": "2025-07-14T09:05:00Z", "user": "vendor@example.com", "action": "Work Started"}
    ],
    "locationTrail": [
      {"timestamp": "2025-07-14T09:05:00Z", "coordinates": [-73.778, 40.641]}
    ]
  }
}`)

	act, err := DecodeActivity(doc)
	require.NoError(t, err)
	require.Equal(t, "activity-2", act.ID)
	require.Equal(t, domain.StatusInProgress, act.Status)
	require.Equal(t, "vendor@example.com", act.Vendor)
	require.InDelta(t, 40.641, act.Location.Lat, 1e-9)
	require.InDelta(t, -73.778, act.Location.Lon, 1e-9)
	require.Equal(t, 500.0, act.GeofenceRadius)
	require.Len(t, act.Logs, 2)
	require.Equal(t, "Work Started", act.Logs[1].Action)
	require.Len(t, act.LocationTrail, 1)
}

func TestDecodeRejectsMissingID(t *testing.T) {
	_, err := DecodeActivity([]byte(`{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}`))
	require.Error(t, err)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := DecodeActivity([]byte(`{"id":`))
	require.Error(t, err)
}
