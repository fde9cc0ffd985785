package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admetry-labs/admetry/common/events"
	"github.com/admetry-labs/admetry/common/logging"
	"github.com/admetry-labs/admetry/internal/storage"
)

// memStore is an in-memory Store with the same idempotency and upsert
// semantics as the Postgres implementation.
type memStore struct {
	mu        sync.Mutex
	events    map[string]*storage.EventRecord
	profiles  map[string]*storage.Profile
	appendErr error
	upsertErr error
}

func newMemStore() *memStore {
	return &memStore{
		events:   make(map[string]*storage.EventRecord),
		profiles: make(map[string]*storage.Profile),
	}
}

func profileKey(userID string, source events.Source) string {
	return userID + "/" + string(source)
}

func (m *memStore) AppendEvent(_ context.Context, rec *storage.EventRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return false, m.appendErr
	}
	if _, ok := m.events[rec.EventID]; ok {
		return false, nil
	}
	m.events[rec.EventID] = rec
	return true, nil
}

func (m *memStore) UpsertProfile(_ context.Context, p *storage.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.profiles[profileKey(p.UserID, p.Source)] = p
	return nil
}

func (m *memStore) GetProfile(_ context.Context, userID string, source events.Source) (*storage.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[profileKey(userID, source)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

func (m *memStore) EventStats(context.Context, storage.StatsFilter) ([]storage.EventStat, error) {
	return nil, nil
}

func (m *memStore) RevenueStats(context.Context, storage.StatsFilter) ([]storage.RevenueStat, error) {
	return nil, nil
}

func (m *memStore) Demographics(context.Context, storage.StatsFilter) (*storage.DemographicsReport, error) {
	return &storage.DemographicsReport{}, nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close()                     {}

func facebookEvent(eventID, userID, name string) *events.Event {
	return facebookEventAt(eventID, userID, name, "2026-08-01T10:00:00Z")
}

func facebookEventAt(eventID, userID, name, timestamp string) *events.Event {
	body := []byte(`{
		"eventId": "` + eventID + `",
		"timestamp": "` + timestamp + `",
		"source": "facebook",
		"funnelStage": "top",
		"eventType": "page.like",
		"data": {
			"user": {
				"userId": "` + userID + `",
				"name": "` + name + `",
				"age": 31,
				"gender": "male",
				"location": {"country": "DE", "city": "Berlin"}
			},
			"engagement": {
				"actionTime": "2026-08-01T09:59:58Z",
				"referrer": "groups",
				"videoId": null
			}
		}
	}`)
	ev, err := events.Parse(body)
	if err != nil {
		panic(err)
	}
	return ev
}

func tiktokEvent(eventID, userID string, followers int) *events.Event {
	body, _ := json.Marshal(map[string]any{
		"eventId":     eventID,
		"timestamp":   "2026-08-01T11:00:00Z",
		"source":      "tiktok",
		"funnelStage": "top",
		"eventType":   "like",
		"data": map[string]any{
			"user": map[string]any{
				"userId":    userID,
				"username":  "creator",
				"followers": followers,
			},
			"engagement": map[string]any{
				"watchTime":         12.5,
				"percentageWatched": 80,
				"device":            "iOS",
				"country":           "FR",
				"videoId":           "v-1",
			},
		},
	})
	ev, err := events.Parse(body)
	if err != nil {
		panic(err)
	}
	return ev
}

func TestProcess_AppendsEventAndProfile(t *testing.T) {
	store := newMemStore()
	proc := New(store, logging.Default())

	ev := facebookEvent("evt-1", "u-1", "Ada")
	require.NoError(t, proc.Process(context.Background(), ev, "corr-1"))

	rec, ok := store.events["evt-1"]
	require.True(t, ok)
	assert.Equal(t, events.SourceFacebook, rec.Source)
	assert.Equal(t, "u-1", rec.UserID)
	assert.Equal(t, "corr-1", rec.CorrelationID)

	p, err := store.GetProfile(context.Background(), "u-1", events.SourceFacebook)
	require.NoError(t, err)

	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(p.Snapshot, &snapshot))
	assert.Equal(t, "Ada", snapshot["name"])
}

func TestProcess_DuplicateEventIsNoOp(t *testing.T) {
	store := newMemStore()
	proc := New(store, logging.Default())

	require.NoError(t, proc.Process(context.Background(), facebookEvent("evt-1", "u-1", "Ada"), "c1"))
	require.NoError(t, proc.Process(context.Background(), facebookEvent("evt-1", "u-1", "Ada"), "c2"))

	assert.Len(t, store.events, 1)
}

func TestProcess_ProfileLastAppliedWins(t *testing.T) {
	store := newMemStore()
	proc := New(store, logging.Default())

	// The second event applied carries an earlier timestamp. The snapshot
	// follows apply order, not event time.
	require.NoError(t, proc.Process(context.Background(),
		facebookEventAt("evt-1", "u-1", "Old Name", "2026-08-01T10:00:00Z"), ""))
	require.NoError(t, proc.Process(context.Background(),
		facebookEventAt("evt-2", "u-1", "New Name", "2026-08-01T08:00:00Z"), ""))

	p, err := store.GetProfile(context.Background(), "u-1", events.SourceFacebook)
	require.NoError(t, err)

	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(p.Snapshot, &snapshot))
	assert.Equal(t, "New Name", snapshot["name"])
	assert.Len(t, store.events, 2)
}

func TestProcess_SameUserIDAcrossSources(t *testing.T) {
	store := newMemStore()
	proc := New(store, logging.Default())

	require.NoError(t, proc.Process(context.Background(), facebookEvent("evt-1", "u-1", "Ada"), ""))
	require.NoError(t, proc.Process(context.Background(), tiktokEvent("evt-2", "u-1", 5000), ""))

	fb, err := store.GetProfile(context.Background(), "u-1", events.SourceFacebook)
	require.NoError(t, err)
	tt, err := store.GetProfile(context.Background(), "u-1", events.SourceTiktok)
	require.NoError(t, err)

	assert.NotEqual(t, string(fb.Snapshot), string(tt.Snapshot))
}

func TestProcess_StorageFailureIsRetryable(t *testing.T) {
	store := newMemStore()
	store.appendErr = errors.New("connection reset")
	proc := New(store, logging.Default())

	err := proc.Process(context.Background(), facebookEvent("evt-1", "u-1", "Ada"), "")
	require.Error(t, err)

	var perr *ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "evt-1", perr.EventID)

	// Retry after the failure clears succeeds and writes exactly once
	store.appendErr = nil
	require.NoError(t, proc.Process(context.Background(), facebookEvent("evt-1", "u-1", "Ada"), ""))
	assert.Len(t, store.events, 1)
}

func TestProcess_UpsertFailureAfterAppendIsRecoverable(t *testing.T) {
	store := newMemStore()
	store.upsertErr = errors.New("deadlock detected")
	proc := New(store, logging.Default())

	err := proc.Process(context.Background(), facebookEvent("evt-1", "u-1", "Ada"), "")
	require.Error(t, err)

	// Redelivery: the append dedupes, the upsert now succeeds
	store.upsertErr = nil
	require.NoError(t, proc.Process(context.Background(), facebookEvent("evt-1", "u-1", "Ada"), ""))

	assert.Len(t, store.events, 1)
	_, err = store.GetProfile(context.Background(), "u-1", events.SourceFacebook)
	assert.NoError(t, err)
}
