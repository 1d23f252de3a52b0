// Package tracker opportunistically appends location samples to an activity
// while work is in progress.
package tracker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/nycsbus/sitetrack/internal/domain"
	"github.com/nycsbus/sitetrack/internal/geo"
	"github.com/nycsbus/sitetrack/internal/observability"
	"github.com/nycsbus/sitetrack/internal/store"
)

// LocationSource supplies the most recent observed location, if any. The
// tracker never requests location itself; it consumes whatever the
// environment provides when asked.
type LocationSource interface {
	Current(ctx context.Context) (geo.Point, bool)
}

// Store is the slice of the concurrent store the tracker needs.
type Store interface {
	Read(ctx context.Context, path string) (*store.Record, error)
	Write(ctx context.Context, path string, act domain.Activity, token string) (string, error)
}

// Option configures optional behaviour for the Logger.
type Option func(*Logger)

// WithCadence overrides the wall-clock tick interval.
func WithCadence(d time.Duration) Option {
	return func(l *Logger) { l.cadence = d }
}

// WithStaleAfter overrides how old the newest log entry must be before a new
// sample is written. Must be shorter than the cadence.
func WithStaleAfter(d time.Duration) Option {
	return func(l *Logger) { l.staleAfter = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(l *Logger) { l.logger = logger }
}

// Logger follows one activity record, appending a location check at a bounded
// rate while the record stays in progress. Writes are best-effort: a version
// conflict means someone else changed the record, so the held copy is
// discarded and the next tick starts from a fresh read.
type Logger struct {
	store  Store
	source LocationSource
	path   string

	cadence    time.Duration
	staleAfter time.Duration
	now        func() time.Time
	logger     *log.Logger

	rec *store.Record
}

// New constructs a Logger for the record at path.
func New(st Store, source LocationSource, path string, opts ...Option) *Logger {
	l := &Logger{
		store:      st,
		source:     source,
		path:       path,
		cadence:    30 * time.Second,
		staleAfter: 25 * time.Second,
		now:        time.Now,
		logger:     log.New(log.Writer(), "[tracker] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run ticks at the configured cadence until the context is cancelled or the
// record leaves the in-progress state.
func (l *Logger) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := l.tick(ctx)
			if err != nil {
				l.logger.Printf("tick error (path=%s): %v", l.path, err)
			}
			if done {
				return nil
			}
		}
	}
}

// tick performs one cadence step. It reports done=true once the record is
// gone or no longer in progress.
func (l *Logger) tick(ctx context.Context) (bool, error) {
	if l.rec == nil {
		rec, err := l.store.Read(ctx, l.path)
		if err != nil {
			return false, err
		}
		if rec == nil {
			return true, nil
		}
		l.rec = rec
	}

	if l.rec.Activity.Status != domain.StatusInProgress {
		return true, nil
	}

	observed, ok := l.source.Current(ctx)
	if !ok {
		return false, nil
	}

	now := l.now().UTC()
	if logs := l.rec.Activity.Logs; len(logs) > 0 {
		if now.Sub(logs[len(logs)-1].Timestamp) < l.staleAfter {
			return false, nil
		}
	}

	mutated, err := domain.AppendLocationCheck(l.rec.Activity, observed, now)
	if err != nil {
		return true, err
	}

	token, err := l.store.Write(ctx, l.path, mutated, l.rec.Token)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Someone else changed the record; start over from a fresh read.
			l.rec = nil
			return false, nil
		}
		// Transport failure: keep the held copy and retry next tick.
		return false, err
	}

	l.rec = &store.Record{Path: l.path, Activity: mutated, Token: token}
	observability.RecordLocationCheck()
	return false, nil
}
