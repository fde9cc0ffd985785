// Package storage persists processed events and user profile snapshots and
// serves the aggregate queries behind the reporter.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/admetry-labs/admetry/common/events"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// EventRecord is the stored form of a processed event. EventID is globally
// unique; appending the same EventID twice is a no-op.
type EventRecord struct {
	EventID       string
	Timestamp     time.Time
	Source        events.Source
	FunnelStage   events.FunnelStage
	EventType     string
	UserID        string
	CorrelationID string
	Data          json.RawMessage
	ReceivedAt    time.Time
}

// Profile is the latest user snapshot seen for a (UserID, Source) pair.
// The same platform user ID under different sources yields distinct rows.
type Profile struct {
	UserID    string
	Source    events.Source
	Snapshot  json.RawMessage
	FirstSeen time.Time
	UpdatedAt time.Time
}

// StatsFilter narrows the reporter aggregate queries. Zero values mean
// unfiltered; From/To bound the event timestamp.
type StatsFilter struct {
	From        *time.Time
	To          *time.Time
	Source      events.Source
	FunnelStage events.FunnelStage
	EventType   string
	CampaignID  string
}

// EventStat is one row of the event statistics report.
type EventStat struct {
	Source      events.Source      `json:"source"`
	FunnelStage events.FunnelStage `json:"funnelStage"`
	EventType   string             `json:"eventType"`
	Count       int64              `json:"count"`
}

// RevenueStat is one row of the revenue report. CampaignID is only
// populated for sources that attribute purchases to campaigns.
type RevenueStat struct {
	Source       events.Source `json:"source"`
	CampaignID   *string       `json:"campaignId,omitempty"`
	Transactions int64         `json:"transactions"`
	Revenue      float64       `json:"revenue"`
}

// BucketCount is one histogram bucket of a demographics report.
type BucketCount struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// DemographicsReport aggregates user profiles per source.
type DemographicsReport struct {
	FacebookAge     []BucketCount `json:"facebookAge"`
	FacebookGender  []BucketCount `json:"facebookGender"`
	TiktokFollowers []BucketCount `json:"tiktokFollowers"`
}

// Store is the persistence contract used by the collectors and the reporter.
type Store interface {
	// AppendEvent inserts an event record. It reports whether a new row
	// was written; a duplicate EventID leaves storage untouched and
	// returns false with a nil error.
	AppendEvent(ctx context.Context, rec *EventRecord) (bool, error)

	// UpsertProfile writes the profile snapshot for (UserID, Source),
	// creating the row on first sight. The write is atomic; concurrent
	// upserts for the same key serialize in the database and the last
	// applied write wins.
	UpsertProfile(ctx context.Context, p *Profile) error

	// GetProfile returns the stored snapshot for (userID, source).
	// Returns ErrNotFound when the pair has never been seen.
	GetProfile(ctx context.Context, userID string, source events.Source) (*Profile, error)

	// EventStats returns event counts grouped by source, funnel stage and
	// event type.
	EventStats(ctx context.Context, f StatsFilter) ([]EventStat, error)

	// RevenueStats returns purchase totals per source (and campaign, for
	// sources that carry one).
	RevenueStats(ctx context.Context, f StatsFilter) ([]RevenueStat, error)

	// Demographics returns user profile histograms per source.
	Demographics(ctx context.Context, f StatsFilter) (*DemographicsReport, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close()
}
