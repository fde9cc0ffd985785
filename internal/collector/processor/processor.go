// Package processor applies validated events to storage: an idempotent
// event append followed by a user profile upsert.
package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/admetry-labs/admetry/common/events"
	"github.com/admetry-labs/admetry/common/logging"
	"github.com/admetry-labs/admetry/internal/storage"
)

// ProcessingError signals a storage failure while applying an event. It is
// retryable: the message stays in the durable log and is redelivered.
type ProcessingError struct {
	EventID string
	Err     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing event %s: %v", e.EventID, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Processor persists events and keeps user profiles current.
type Processor struct {
	store  storage.Store
	logger *logging.Logger
}

func New(store storage.Store, logger *logging.Logger) *Processor {
	return &Processor{store: store, logger: logger}
}

// Process appends the event record and upserts the embedded user snapshot.
//
// The append is idempotent on EventID, so a redelivered message reaches the
// upsert without writing a second event row. The profile upsert runs even
// for duplicate events: it is a last-write-wins snapshot and reapplying it
// is harmless, while skipping it could lose the profile write of a message
// that failed between append and upsert on a previous delivery.
func (p *Processor) Process(ctx context.Context, ev *events.Event, correlationID string) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return &ProcessingError{EventID: ev.EventID, Err: fmt.Errorf("encoding event data: %w", err)}
	}

	rec := &storage.EventRecord{
		EventID:       ev.EventID,
		Timestamp:     ev.Timestamp,
		Source:        ev.Source,
		FunnelStage:   ev.FunnelStage,
		EventType:     ev.EventType,
		UserID:        ev.Data.User.UserID(),
		CorrelationID: correlationID,
		Data:          data,
	}

	inserted, err := p.store.AppendEvent(ctx, rec)
	if err != nil {
		return &ProcessingError{EventID: ev.EventID, Err: err}
	}
	if !inserted {
		p.logger.Debug("duplicate event skipped",
			logging.EventID(ev.EventID),
			logging.Source(string(ev.Source)),
			logging.CorrelationID(correlationID))
	}

	snapshot, err := json.Marshal(ev.Data.User)
	if err != nil {
		return &ProcessingError{EventID: ev.EventID, Err: fmt.Errorf("encoding user snapshot: %w", err)}
	}

	profile := &storage.Profile{
		UserID:   ev.Data.User.UserID(),
		Source:   ev.Source,
		Snapshot: snapshot,
	}
	if err := p.store.UpsertProfile(ctx, profile); err != nil {
		return &ProcessingError{EventID: ev.EventID, Err: err}
	}

	return nil
}
