package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admetry-labs/admetry/common/events"
	"github.com/admetry-labs/admetry/common/logging"
	"github.com/admetry-labs/admetry/common/messaging"
	natsclient "github.com/admetry-labs/admetry/common/messaging/nats"
	"github.com/admetry-labs/admetry/internal/collector/processor"
	"github.com/admetry-labs/admetry/internal/storage"
)

// failNStore is an in-memory Store that fails the first n appends, to
// exercise redelivery.
type failNStore struct {
	mu       sync.Mutex
	failures int
	events   map[string]*storage.EventRecord
	profiles map[string]*storage.Profile
}

func newFailNStore(failures int) *failNStore {
	return &failNStore{
		failures: failures,
		events:   make(map[string]*storage.EventRecord),
		profiles: make(map[string]*storage.Profile),
	}
}

func (s *failNStore) AppendEvent(_ context.Context, rec *storage.EventRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures != 0 {
		if s.failures > 0 {
			s.failures--
		}
		return false, errors.New("simulated storage failure")
	}
	if _, ok := s.events[rec.EventID]; ok {
		return false, nil
	}
	s.events[rec.EventID] = rec
	return true, nil
}

func (s *failNStore) UpsertProfile(_ context.Context, p *storage.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID+"/"+string(p.Source)] = p
	return nil
}

func (s *failNStore) GetProfile(_ context.Context, userID string, source events.Source) (*storage.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID+"/"+string(source)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

func (s *failNStore) EventStats(context.Context, storage.StatsFilter) ([]storage.EventStat, error) {
	return nil, nil
}

func (s *failNStore) RevenueStats(context.Context, storage.StatsFilter) ([]storage.RevenueStat, error) {
	return nil, nil
}

func (s *failNStore) Demographics(context.Context, storage.StatsFilter) (*storage.DemographicsReport, error) {
	return &storage.DemographicsReport{}, nil
}

func (s *failNStore) Ping(context.Context) error { return nil }
func (s *failNStore) Close()                     {}

func (s *failNStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *failNStore) event(id string) *storage.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[id]
}

// slowStore blocks the first append until released and records the state of
// the handler context at release time.
type slowStore struct {
	*failNStore
	started sync.Once
	begun   chan struct{}
	release chan struct{}

	mu     sync.Mutex
	ctxErr error
}

func newSlowStore() *slowStore {
	return &slowStore{
		failNStore: newFailNStore(0),
		begun:      make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (s *slowStore) AppendEvent(ctx context.Context, rec *storage.EventRecord) (bool, error) {
	s.started.Do(func() { close(s.begun) })
	<-s.release

	s.mu.Lock()
	s.ctxErr = ctx.Err()
	s.mu.Unlock()

	return s.failNStore.AppendEvent(ctx, rec)
}

func (s *slowStore) contextErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctxErr
}

func runEmbeddedServer(t *testing.T) string {
	t.Helper()

	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	}

	ns, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()
	require.True(t, ns.ReadyForConnections(10*time.Second), "embedded server not ready")
	t.Cleanup(ns.Shutdown)

	return ns.ClientURL()
}

func newTestClient(t *testing.T, url string) *natsclient.JetStreamClient {
	t.Helper()

	logger := logging.New(slog.LevelError, "text")
	js, err := natsclient.NewJetStreamClient(natsclient.Config{
		URL:           url,
		Name:          "consumer-test",
		MaxReconnects: 2,
		ReconnectWait: 100 * time.Millisecond,
		Timeout:       2 * time.Second,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { js.Close() })

	return js
}

func testOptions(maxDeliver int) Options {
	return Options{
		AckWait:       2 * time.Second,
		MaxDeliver:    maxDeliver,
		MaxAckPending: 16,
		NakDelay:      50 * time.Millisecond,
	}
}

func publishEvent(t *testing.T, js *natsclient.JetStreamClient, source events.Source, body []byte, correlationID string) {
	t.Helper()

	_, err := js.PublishSync(context.Background(), &messaging.Message{
		Subject: messaging.EventSubject(source),
		Data:    body,
		Metadata: map[string]string{
			messaging.HeaderCorrelationID: correlationID,
		},
	})
	require.NoError(t, err)
}

func validTiktokBody(eventID string) []byte {
	return []byte(`{
		"eventId": "` + eventID + `",
		"timestamp": "2026-08-01T12:00:00Z",
		"source": "tiktok",
		"funnelStage": "bottom",
		"eventType": "purchase",
		"data": {
			"user": {"userId": "u-9", "username": "creator", "followers": 1200},
			"engagement": {
				"actionTime": "2026-08-01T11:59:59Z",
				"profileId": null,
				"purchasedItem": "ring light",
				"purchaseAmount": "49.99"
			}
		}
	}`)
}

func TestConsumer_ProcessesPublishedEvent(t *testing.T) {
	url := runEmbeddedServer(t)
	js := newTestClient(t, url)
	store := newFailNStore(0)

	logger := logging.New(slog.LevelError, "text")
	cons := New(js, processor.New(store, logger), testOptions(5), logger)
	require.NoError(t, cons.Run(context.Background(), []events.Source{events.SourceTiktok}))
	defer cons.Stop()

	publishEvent(t, js, events.SourceTiktok, validTiktokBody("evt-10"), "corr-10")

	require.Eventually(t, func() bool {
		return store.eventCount() == 1
	}, 5*time.Second, 20*time.Millisecond)

	rec := store.event("evt-10")
	require.NotNil(t, rec)
	assert.Equal(t, events.SourceTiktok, rec.Source)
	assert.Equal(t, "corr-10", rec.CorrelationID, "correlation ID must come from the message header")

	_, err := store.GetProfile(context.Background(), "u-9", events.SourceTiktok)
	assert.NoError(t, err)
}

func TestConsumer_RedeliversAfterTransientFailure(t *testing.T) {
	url := runEmbeddedServer(t)
	js := newTestClient(t, url)
	store := newFailNStore(1)

	logger := logging.New(slog.LevelError, "text")
	cons := New(js, processor.New(store, logger), testOptions(5), logger)
	require.NoError(t, cons.Run(context.Background(), []events.Source{events.SourceTiktok}))
	defer cons.Stop()

	publishEvent(t, js, events.SourceTiktok, validTiktokBody("evt-11"), "corr-11")

	require.Eventually(t, func() bool {
		return store.eventCount() == 1
	}, 10*time.Second, 20*time.Millisecond)

	// The redelivered message must not produce a second row
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, store.eventCount())
}

func TestConsumer_QuarantinesPoisonMessage(t *testing.T) {
	url := runEmbeddedServer(t)
	js := newTestClient(t, url)
	store := newFailNStore(0)

	logger := logging.New(slog.LevelError, "text")
	cons := New(js, processor.New(store, logger), testOptions(2), logger)
	require.NoError(t, cons.Run(context.Background(), []events.Source{events.SourceFacebook}))
	defer cons.Stop()

	// Never passes schema validation, so every delivery fails
	publishEvent(t, js, events.SourceFacebook, []byte(`{"eventId": "evt-bad"}`), "corr-bad")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var quarantined []*messaging.Message
	require.Eventually(t, func() bool {
		msgs, err := js.QuarantinedMessages(ctx, messaging.QuarantineSubject(events.SourceFacebook), 10)
		if err != nil || len(msgs) == 0 {
			return false
		}
		quarantined = msgs
		return true
	}, 10*time.Second, 50*time.Millisecond)

	require.Len(t, quarantined, 1)
	assert.Equal(t, "corr-bad", quarantined[0].CorrelationID())
	assert.Equal(t, messaging.EventSubject(events.SourceFacebook), quarantined[0].Metadata["Origin-Subject"])
	assert.NotEmpty(t, quarantined[0].Metadata["Last-Error"])
	assert.Equal(t, 0, store.eventCount())
}

func TestConsumer_IndependentSources(t *testing.T) {
	url := runEmbeddedServer(t)
	js := newTestClient(t, url)
	store := newFailNStore(0)

	logger := logging.New(slog.LevelError, "text")
	cons := New(js, processor.New(store, logger), testOptions(5), logger)
	require.NoError(t, cons.Run(context.Background(), []events.Source{events.SourceFacebook}))
	defer cons.Stop()

	// Only the facebook consumer is bound; tiktok messages stay in the
	// stream untouched.
	publishEvent(t, js, events.SourceTiktok, validTiktokBody("evt-12"), "corr-12")

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, store.eventCount())
}

func TestConsumer_StopDrainsInFlightProcessing(t *testing.T) {
	url := runEmbeddedServer(t)
	js := newTestClient(t, url)
	store := newSlowStore()

	logger := logging.New(slog.LevelError, "text")
	opts := Options{
		// Long enough that the blocked handler is not redelivered mid-test
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: 16,
		NakDelay:      50 * time.Millisecond,
	}
	cons := New(js, processor.New(store, logger), opts, logger)
	require.NoError(t, cons.Run(context.Background(), []events.Source{events.SourceTiktok}))

	publishEvent(t, js, events.SourceTiktok, validTiktokBody("evt-13"), "corr-13")

	select {
	case <-store.begun:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}

	stopped := make(chan struct{})
	go func() {
		cons.Stop()
		close(stopped)
	}()

	// Stop must wait for the in-flight handler, not abort it
	time.Sleep(100 * time.Millisecond)
	select {
	case <-stopped:
		t.Fatal("Stop returned while a handler was still running")
	default:
	}

	close(store.release)

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the handler finished")
	}

	assert.NoError(t, store.contextErr(), "in-flight handler must keep a live context through shutdown")
	assert.Equal(t, 1, store.eventCount())
}

func TestConsumer_RejectsUnknownSource(t *testing.T) {
	url := runEmbeddedServer(t)
	js := newTestClient(t, url)
	store := newFailNStore(0)

	logger := logging.New(slog.LevelError, "text")
	cons := New(js, processor.New(store, logger), testOptions(5), logger)

	err := cons.Run(context.Background(), []events.Source{"myspace"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}
