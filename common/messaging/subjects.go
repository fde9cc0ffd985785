// Package messaging defines standard subject names for the admetry message bus.
package messaging

import "github.com/admetry-labs/admetry/common/events"

// Subject layout: one stream holds every per-source event subject plus the
// quarantine subjects for messages that exhausted their delivery attempts.
const (
	// EventSubjectPrefix is the prefix of all per-source event subjects.
	EventSubjectPrefix = "events."

	// QuarantineSubjectPrefix is the prefix of per-source quarantine subjects.
	QuarantineSubjectPrefix = "dlq.events."
)

// EventSubject returns the durable log subject for a source,
// e.g. events.facebook.
func EventSubject(source events.Source) string {
	return EventSubjectPrefix + string(source)
}

// QuarantineSubject returns the quarantine subject for a source,
// e.g. dlq.events.facebook.
func QuarantineSubject(source events.Source) string {
	return QuarantineSubjectPrefix + string(source)
}

// EventSubjects returns the subject list covering every supported source.
func EventSubjects() []string {
	subjects := make([]string, 0, len(events.Sources))
	for _, s := range events.Sources {
		subjects = append(subjects, EventSubject(s))
	}
	return subjects
}

// ConsumerName returns the durable consumer name bound by the collector
// for a source, e.g. facebook-collector.
func ConsumerName(source events.Source) string {
	return string(source) + "-collector"
}
