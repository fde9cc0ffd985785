package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/admetry-labs/admetry/common/events"
	"github.com/admetry-labs/admetry/common/messaging"
	"github.com/admetry-labs/admetry/internal/storage"
)

type fakeBroker struct {
	connected bool
}

func (f *fakeBroker) Publish(context.Context, string, []byte) error { return nil }
func (f *fakeBroker) PublishMsg(context.Context, *messaging.Message) error {
	return nil
}

func (f *fakeBroker) Request(_ context.Context, subject string, _ []byte, _ time.Duration) (*messaging.Message, error) {
	if !f.connected {
		return nil, errors.New("connection closed")
	}
	return &messaging.Message{Subject: subject}, nil
}

func (f *fakeBroker) Close() error      { return nil }
func (f *fakeBroker) Drain() error      { return nil }
func (f *fakeBroker) IsConnected() bool { return f.connected }

type pingStore struct {
	pingErr error
}

func (s *pingStore) AppendEvent(context.Context, *storage.EventRecord) (bool, error) {
	return false, errors.New("not implemented")
}

func (s *pingStore) UpsertProfile(context.Context, *storage.Profile) error {
	return errors.New("not implemented")
}

func (s *pingStore) GetProfile(context.Context, string, events.Source) (*storage.Profile, error) {
	return nil, storage.ErrNotFound
}

func (s *pingStore) EventStats(context.Context, storage.StatsFilter) ([]storage.EventStat, error) {
	return nil, nil
}

func (s *pingStore) RevenueStats(context.Context, storage.StatsFilter) ([]storage.RevenueStat, error) {
	return nil, nil
}

func (s *pingStore) Demographics(context.Context, storage.StatsFilter) (*storage.DemographicsReport, error) {
	return &storage.DemographicsReport{}, nil
}

func (s *pingStore) Ping(context.Context) error { return s.pingErr }
func (s *pingStore) Close()                     {}

func getReady(router http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return rec
}

func TestReady_RequiresBrokerAndDatabase(t *testing.T) {
	tests := []struct {
		name   string
		broker *fakeBroker
		store  *pingStore
		want   int
	}{
		{"both up", &fakeBroker{connected: true}, &pingStore{}, http.StatusOK},
		{"broker down", &fakeBroker{connected: false}, &pingStore{}, http.StatusServiceUnavailable},
		{"database down", &fakeBroker{connected: true}, &pingStore{pingErr: errors.New("down")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(tt.broker, tt.store)
			assert.Equal(t, tt.want, getReady(router).Code)
		})
	}
}

func TestHealthz_AlwaysOK(t *testing.T) {
	router := NewRouter(&fakeBroker{}, &pingStore{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
