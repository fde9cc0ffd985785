package logging

import "log/slog"

// Common field names for consistent logging across services.
const (
	FieldService       = "service"
	FieldSource        = "source"
	FieldSubject       = "subject"
	FieldEventID       = "event_id"
	FieldEventType     = "event_type"
	FieldUserID        = "user_id"
	FieldCorrelationID = "correlation_id"
	FieldAttempt       = "attempt"
	FieldError         = "error"
	FieldDuration      = "duration_ms"
)

// String returns a slog attribute for an arbitrary string field.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Int returns a slog attribute for an arbitrary int field.
func Int(key string, value int) slog.Attr {
	return slog.Int(key, value)
}

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Source returns a slog attribute for the event source.
func Source(source string) slog.Attr {
	return slog.String(FieldSource, source)
}

// Subject returns a slog attribute for a durable log subject.
func Subject(subject string) slog.Attr {
	return slog.String(FieldSubject, subject)
}

// EventID returns a slog attribute for an event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// EventType returns a slog attribute for an event type.
func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

// UserID returns a slog attribute for the platform user ID.
func UserID(id string) slog.Attr {
	return slog.String(FieldUserID, id)
}

// CorrelationID returns a slog attribute for a message correlation ID.
func CorrelationID(id string) slog.Attr {
	return slog.String(FieldCorrelationID, id)
}

// Attempt returns a slog attribute for a delivery attempt count.
func Attempt(n int) slog.Attr {
	return slog.Int(FieldAttempt, n)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}
