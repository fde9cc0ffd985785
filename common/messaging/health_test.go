package messaging

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClient is a minimal Client whose connection can drop when the probe
// request runs.
type fakeClient struct {
	connected        bool
	requestErr       error
	dropOnRequest    bool
	requestedSubject string
}

func (f *fakeClient) Publish(context.Context, string, []byte) error { return nil }
func (f *fakeClient) PublishMsg(context.Context, *Message) error    { return nil }

func (f *fakeClient) Request(_ context.Context, subject string, _ []byte, _ time.Duration) (*Message, error) {
	f.requestedSubject = subject
	if f.dropOnRequest {
		f.connected = false
	}
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return &Message{Subject: subject}, nil
}

func (f *fakeClient) Close() error      { return nil }
func (f *fakeClient) Drain() error      { return nil }
func (f *fakeClient) IsConnected() bool { return f.connected }

func TestCheckClientHealth_NilClient(t *testing.T) {
	status := CheckClientHealth(context.Background(), nil)
	if status.Healthy() {
		t.Fatal("nil client must not be healthy")
	}
	if status.Error == "" {
		t.Error("expected an error message")
	}
}

func TestCheckClientHealth_Disconnected(t *testing.T) {
	status := CheckClientHealth(context.Background(), &fakeClient{connected: false})
	if status.Healthy() {
		t.Fatal("disconnected client must not be healthy")
	}
}

func TestCheckClientHealth_RoundTrip(t *testing.T) {
	client := &fakeClient{connected: true}
	status := CheckClientHealth(context.Background(), client)

	if !status.Healthy() {
		t.Fatalf("expected healthy, got error %q", status.Error)
	}
	if client.requestedSubject != healthPingSubject {
		t.Errorf("probed %q, want %q", client.requestedSubject, healthPingSubject)
	}
}

func TestCheckClientHealth_NoResponderIsHealthy(t *testing.T) {
	client := &fakeClient{connected: true, requestErr: errors.New("no responders available")}
	status := CheckClientHealth(context.Background(), client)

	if !status.Healthy() {
		t.Fatalf("missing responder must not fail the check, got %q", status.Error)
	}
}

func TestCheckClientHealth_TransportFailure(t *testing.T) {
	client := &fakeClient{
		connected:     true,
		requestErr:    errors.New("connection reset"),
		dropOnRequest: true,
	}
	status := CheckClientHealth(context.Background(), client)

	if status.Healthy() {
		t.Fatal("dropped connection must fail the check")
	}
	if status.Connected {
		t.Error("status must report the connection as down")
	}
}
