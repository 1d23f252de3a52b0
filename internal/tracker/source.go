package tracker

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/nycsbus/sitetrack/internal/geo"
)

// StreamSource consumes newline-delimited location samples from a reader
// (typically a field device feed on stdin) and retains the latest one.
type StreamSource struct {
	mu     sync.Mutex
	latest geo.Point
	seen   bool
}

// NewStreamSource constructs an empty source; Run feeds it.
func NewStreamSource() *StreamSource {
	return &StreamSource{}
}

// Run reads samples until the reader is drained or the context is cancelled.
// Malformed lines are skipped.
func (s *StreamSource) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var sample struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &sample); err != nil {
			continue
		}

		s.mu.Lock()
		s.latest = geo.Point{Lat: sample.Latitude, Lon: sample.Longitude}
		s.seen = true
		s.mu.Unlock()
	}
	return scanner.Err()
}

// Current returns the most recent sample, if one has arrived.
func (s *StreamSource) Current(ctx context.Context) (geo.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.seen
}
