package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nycsbus/sitetrack/internal/domain"
	"github.com/nycsbus/sitetrack/internal/geo"
)

// fakeRemote is an in-memory RemoteClient with sha-style version tokens.
type fakeRemote struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	gets    int
	puts    int
	// failPut, when set, is returned by the next Put.
	failPut error
}

type fakeObject struct {
	content []byte
	token   string
	rev     int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{objects: map[string]fakeObject{}}
}

func (f *fakeRemote) Get(ctx context.Context, path string) ([]byte, string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	obj, ok := f.objects[path]
	if !ok {
		return nil, "", false, nil
	}
	return append([]byte(nil), obj.content...), obj.token, true, nil
}

func (f *fakeRemote) Put(ctx context.Context, path string, content []byte, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.failPut != nil {
		err := f.failPut
		f.failPut = nil
		return "", err
	}
	existing, exists := f.objects[path]
	if exists && existing.token != token {
		return "", ErrConflict
	}
	rev := 1
	if exists {
		rev = existing.rev + 1
	}
	obj := fakeObject{
		content: append([]byte(nil), content...),
		token:   fmt.Sprintf("sha-%s-%d", path, rev),
		rev:     rev,
	}
	f.objects[path] = obj
	return obj.token, nil
}

func (f *fakeRemote) List(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var paths []string
	for path := range f.objects {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

func storeActivity(title string, created time.Time) domain.Activity {
	return domain.NewActivity(domain.NewActivityInput{
		Title:          title,
		Vendor:         "vendor@example.com",
		Site:           "Zerega",
		Category:       "Repair EV Charger",
		Location:       geo.Point{Lat: 40.85, Lon: -73.844},
		GeofenceCenter: geo.Point{Lat: 40.85, Lon: -73.844},
		GeofenceRadius: 500,
	}, domain.User{Username: "admin", Role: domain.RoleAdmin}, created)
}

func TestReadMissIsNotAnError(t *testing.T) {
	s, err := New(newFakeRemote())
	require.NoError(t, err)

	rec, err := s.Read(context.Background(), "activities/missing.json")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	remote := newFakeRemote()
	s, err := New(remote)
	require.NoError(t, err)
	ctx := context.Background()

	act := storeActivity("Repair Charger #3", time.Date(2025, time.July, 14, 10, 0, 0, 0, time.UTC))
	token, err := s.Write(ctx, "activities/a.json", act, "")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	rec, err := s.Read(ctx, "activities/a.json")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, token, rec.Token)
	require.Equal(t, act.ID, rec.Activity.ID)
	require.Equal(t, domain.StatusPending, rec.Activity.Status)
	require.Len(t, rec.Activity.Logs, 1)
	require.Equal(t, "Activity created.", rec.Activity.Logs[0].Action)
	require.InDelta(t, 40.85, rec.Activity.Location.Lat, 1e-9)
	require.InDelta(t, -73.844, rec.Activity.Location.Lon, 1e-9)
}

func TestStaleTokenWriteConflicts(t *testing.T) {
	remote := newFakeRemote()
	s, err := New(remote)
	require.NoError(t, err)
	ctx := context.Background()

	act := storeActivity("Repair Charger #3", time.Now().UTC())
	t1, err := s.Write(ctx, "activities/a.json", act, "")
	require.NoError(t, err)

	// Another session moves the record on: write directly to the remote.
	external := act
	external.Status = domain.StatusInProgress
	content, err := EncodeActivity(external)
	require.NoError(t, err)
	t2, err := remote.Put(ctx, "activities/a.json", content, t1)
	require.NoError(t, err)
	require.NotEqual(t, t1, t2)

	// A write still carrying t1 must conflict, not overwrite.
	_, err = s.Write(ctx, "activities/a.json", act, t1)
	require.ErrorIs(t, err, ErrConflict)

	// The subsequent read observes the external revision, not a merge.
	rec, err := s.Read(ctx, "activities/a.json")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, t2, rec.Token)
	require.Equal(t, domain.StatusInProgress, rec.Activity.Status)
}

func TestCachedReadsAreIdempotent(t *testing.T) {
	remote := newFakeRemote()
	s, err := New(remote, WithCacheTTL(time.Minute))
	require.NoError(t, err)
	ctx := context.Background()

	act := storeActivity("Install Camera", time.Now().UTC())
	_, err = s.Write(ctx, "activities/b.json", act, "")
	require.NoError(t, err)

	first, err := s.Read(ctx, "activities/b.json")
	require.NoError(t, err)
	second, err := s.Read(ctx, "activities/b.json")
	require.NoError(t, err)

	require.Equal(t, first.Token, second.Token)
	require.Equal(t, first.Activity, second.Activity)
	// The write primed the cache, so neither read should hit the remote.
	require.Equal(t, 0, remote.gets)
}

func TestWriteInvalidatesCache(t *testing.T) {
	remote := newFakeRemote()
	s, err := New(remote, WithCacheTTL(time.Minute))
	require.NoError(t, err)
	ctx := context.Background()

	act := storeActivity("Install Camera", time.Now().UTC())
	t1, err := s.Write(ctx, "activities/b.json", act, "")
	require.NoError(t, err)

	updated := act
	updated.Status = domain.StatusInProgress
	t2, err := s.Write(ctx, "activities/b.json", updated, t1)
	require.NoError(t, err)
	require.NotEqual(t, t1, t2)

	rec, err := s.Read(ctx, "activities/b.json")
	require.NoError(t, err)
	require.Equal(t, t2, rec.Token, "read after write must observe the new revision")
	require.Equal(t, domain.StatusInProgress, rec.Activity.Status)
}

func TestConflictEvictsCachedRevision(t *testing.T) {
	remote := newFakeRemote()
	s, err := New(remote, WithCacheTTL(time.Minute))
	require.NoError(t, err)
	ctx := context.Background()

	act := storeActivity("Install Camera", time.Now().UTC())
	t1, err := s.Write(ctx, "activities/b.json", act, "")
	require.NoError(t, err)

	content, err := EncodeActivity(act)
	require.NoError(t, err)
	_, err = remote.Put(ctx, "activities/b.json", content, t1)
	require.NoError(t, err)

	_, err = s.Write(ctx, "activities/b.json", act, t1)
	require.ErrorIs(t, err, ErrConflict)

	// The conflicted write must not leave the pre-conflict revision cached.
	gets := remote.gets
	rec, err := s.Read(ctx, "activities/b.json")
	require.NoError(t, err)
	require.Greater(t, remote.gets, gets, "read after conflict must go to the remote")
	require.NotEqual(t, t1, rec.Token)
}

func TestTransportErrorsAreWrapped(t *testing.T) {
	remote := newFakeRemote()
	s, err := New(remote)
	require.NoError(t, err)
	ctx := context.Background()

	remote.failPut = errors.New("connection reset")
	_, err = s.Write(ctx, "activities/c.json", storeActivity("x", time.Now().UTC()), "")
	require.ErrorIs(t, err, ErrTransport)
	require.NotErrorIs(t, err, ErrConflict)
}

func TestReadAllSortsNewestFirst(t *testing.T) {
	remote := newFakeRemote()
	s, err := New(remote)
	require.NoError(t, err)
	ctx := context.Background()

	older := storeActivity("Older", time.Date(2025, time.July, 13, 14, 30, 0, 0, time.UTC))
	newer := storeActivity("Newer", time.Date(2025, time.July, 14, 10, 0, 0, 0, time.UTC))

	_, err = s.Write(ctx, "activities/older.json", older, "")
	require.NoError(t, err)
	_, err = s.Write(ctx, "activities/newer.json", newer, "")
	require.NoError(t, err)

	records, err := s.ReadAll(ctx, "activities")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "Newer", records[0].Activity.Title)
	require.Equal(t, "Older", records[1].Activity.Title)
}
