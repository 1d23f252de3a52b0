package tracker

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nycsbus/sitetrack/internal/domain"
	"github.com/nycsbus/sitetrack/internal/geo"
	"github.com/nycsbus/sitetrack/internal/store"
)

const testPath = "activities/act-1.json"

var site = geo.Point{Lat: 40.85, Lon: -73.844}

type stubStore struct {
	rec        *store.Record
	readCalls  int
	writeCalls int
	writeErr   error
	lastWrite  domain.Activity
}

func (s *stubStore) Read(ctx context.Context, path string) (*store.Record, error) {
	s.readCalls++
	if s.rec == nil {
		return nil, nil
	}
	rec := *s.rec
	return &rec, nil
}

func (s *stubStore) Write(ctx context.Context, path string, act domain.Activity, token string) (string, error) {
	s.writeCalls++
	if s.writeErr != nil {
		err := s.writeErr
		s.writeErr = nil
		return "", err
	}
	s.lastWrite = act
	s.rec = &store.Record{Path: path, Activity: act, Token: token + "+1"}
	return token + "+1", nil
}

type fixedSource struct {
	point geo.Point
	ok    bool
}

func (f fixedSource) Current(ctx context.Context) (geo.Point, bool) {
	return f.point, f.ok
}

func inProgressRecord(lastLog time.Time) *store.Record {
	act := domain.NewActivity(domain.NewActivityInput{
		Title:          "Install Camera on Bus 4501",
		Vendor:         "vendor@example.com",
		Site:           "JFK Depot",
		Category:       "Install Equipment",
		Location:       site,
		GeofenceCenter: site,
		GeofenceRadius: 500,
	}, domain.User{Username: "admin", Role: domain.RoleAdmin}, lastLog.Add(-time.Hour))
	act.Status = domain.StatusInProgress
	act.Logs = append(act.Logs, domain.LogEntry{Timestamp: lastLog, User: "vendor@example.com", Action: "Work Started"})
	return &store.Record{Path: testPath, Activity: act, Token: "sha-1"}
}

func testLogger(st Store, src LocationSource, now time.Time) *Logger {
	return New(st, src, testPath,
		WithCadence(30*time.Second),
		WithStaleAfter(25*time.Second),
		WithClock(func() time.Time { return now }),
		WithLogger(log.New(io.Discard, "", 0)),
	)
}

func TestTickAppendsWhenStale(t *testing.T) {
	now := time.Date(2025, time.July, 15, 9, 5, 0, 0, time.UTC)
	st := &stubStore{rec: inProgressRecord(now.Add(-40 * time.Second))}
	l := testLogger(st, fixedSource{point: site, ok: true}, now)

	done, err := l.tick(context.Background())
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, 1, st.writeCalls)

	logs := st.lastWrite.Logs
	require.Equal(t, "Periodic location check", logs[len(logs)-1].Action)
	require.Equal(t, "System", logs[len(logs)-1].User)
	require.Len(t, st.lastWrite.LocationTrail, 1)

	// The logger now holds the written revision and reuses its token.
	require.Equal(t, "sha-1+1", l.rec.Token)
}

func TestTickSkipsWhenRecentLogExists(t *testing.T) {
	now := time.Date(2025, time.July, 15, 9, 5, 0, 0, time.UTC)
	st := &stubStore{rec: inProgressRecord(now.Add(-10 * time.Second))}
	l := testLogger(st, fixedSource{point: site, ok: true}, now)

	done, err := l.tick(context.Background())
	require.NoError(t, err)
	require.False(t, done)
	require.Zero(t, st.writeCalls)
}

func TestTickSkipsWithoutLocation(t *testing.T) {
	now := time.Date(2025, time.July, 15, 9, 5, 0, 0, time.UTC)
	st := &stubStore{rec: inProgressRecord(now.Add(-time.Minute))}
	l := testLogger(st, fixedSource{ok: false}, now)

	done, err := l.tick(context.Background())
	require.NoError(t, err)
	require.False(t, done)
	require.Zero(t, st.writeCalls)
}

func TestTickStopsWhenNotInProgress(t *testing.T) {
	now := time.Date(2025, time.July, 15, 9, 5, 0, 0, time.UTC)
	rec := inProgressRecord(now.Add(-time.Minute))
	rec.Activity.Status = domain.StatusPaused
	st := &stubStore{rec: rec}
	l := testLogger(st, fixedSource{point: site, ok: true}, now)

	done, err := l.tick(context.Background())
	require.NoError(t, err)
	require.True(t, done)
	require.Zero(t, st.writeCalls)
}

func TestTickStopsWhenRecordMissing(t *testing.T) {
	now := time.Date(2025, time.July, 15, 9, 5, 0, 0, time.UTC)
	st := &stubStore{}
	l := testLogger(st, fixedSource{point: site, ok: true}, now)

	done, err := l.tick(context.Background())
	require.NoError(t, err)
	require.True(t, done)
}

func TestConflictDiscardsHeldCopy(t *testing.T) {
	now := time.Date(2025, time.July, 15, 9, 5, 0, 0, time.UTC)
	st := &stubStore{rec: inProgressRecord(now.Add(-time.Minute))}
	l := testLogger(st, fixedSource{point: site, ok: true}, now)

	// Prime the held copy, then force a conflict on the next write.
	_, err := l.tick(context.Background())
	require.NoError(t, err)
	st.writeErr = store.ErrConflict

	later := now.Add(30 * time.Second)
	l.now = func() time.Time { return later }

	done, err := l.tick(context.Background())
	require.NoError(t, err, "a conflict must not surface as an error")
	require.False(t, done)
	require.Nil(t, l.rec, "held copy must be discarded after a conflict")

	// Next tick re-reads and resumes.
	reads := st.readCalls
	_, err = l.tick(context.Background())
	require.NoError(t, err)
	require.Greater(t, st.readCalls, reads)
}

func TestTransportErrorKeepsHeldCopy(t *testing.T) {
	now := time.Date(2025, time.July, 15, 9, 5, 0, 0, time.UTC)
	st := &stubStore{rec: inProgressRecord(now.Add(-time.Minute))}
	l := testLogger(st, fixedSource{point: site, ok: true}, now)

	_, err := l.tick(context.Background())
	require.NoError(t, err)
	held := l.rec
	st.writeErr = errors.New("connection reset")

	later := now.Add(30 * time.Second)
	l.now = func() time.Time { return later }

	done, err := l.tick(context.Background())
	require.Error(t, err)
	require.False(t, done)
	require.Equal(t, held, l.rec, "transport failure keeps the held copy for retry")
}

func TestRunStopsOnCancel(t *testing.T) {
	st := &stubStore{rec: inProgressRecord(time.Now().UTC().Add(-time.Minute))}
	l := New(st, fixedSource{}, testPath,
		WithCadence(5*time.Millisecond),
		WithLogger(log.New(io.Discard, "", 0)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := l.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStreamSource(t *testing.T) {
	src := NewStreamSource()

	_, ok := src.Current(context.Background())
	require.False(t, ok)

	feed := strings.Join([]string{
		`{"latitude": 40.85, "longitude": -73.844}`,
		`not json`,
		`{"latitude": 40.641, "longitude": -73.778}`,
	}, "\n")
	require.NoError(t, src.Run(context.Background(), strings.NewReader(feed)))

	point, ok := src.Current(context.Background())
	require.True(t, ok)
	require.Equal(t, geo.Point{Lat: 40.641, Lon: -73.778}, point)
}
