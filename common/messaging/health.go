package messaging

import (
	"context"
	"fmt"
	"time"
)

// healthPingSubject is the broker subject probed by readiness checks. No
// service answers it; the point is the round-trip, not the reply.
const healthPingSubject = "_HEALTH.ping"

const healthPingTimeout = 2 * time.Second

// HealthStatus is the result of a broker round-trip check. Services embed
// it in their readiness responses.
type HealthStatus struct {
	// Connected indicates the client holds a live broker connection.
	Connected bool `json:"connected"`

	// Latency is the measured round-trip time of the probe.
	Latency time.Duration `json:"latency_ms"`

	// Error describes the failure when the broker is unhealthy.
	Error string `json:"error,omitempty"`
}

// Healthy reports whether the broker can serve traffic.
func (s HealthStatus) Healthy() bool {
	return s.Connected && s.Error == ""
}

// CheckClientHealth probes the broker with a request round-trip. A missing
// responder on the ping subject still proves the server answered, so only
// transport failures count against health.
func CheckClientHealth(ctx context.Context, client Client) HealthStatus {
	var status HealthStatus

	if client == nil {
		status.Error = "no broker client"
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	start := time.Now()
	_, err := client.Request(ctx, healthPingSubject, []byte("ping"), healthPingTimeout)
	status.Latency = time.Since(start)

	if err != nil && !client.IsConnected() {
		status.Connected = false
		status.Error = fmt.Sprintf("broker round-trip failed: %v", err)
	}

	return status
}
