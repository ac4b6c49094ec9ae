package logging

import "log/slog"

// Common field names for consistent logging across the hook components.
const (
	FieldService    = "service"
	FieldMessageID  = "message_id"
	FieldSender     = "sender_id"
	FieldReceiver   = "receiver_id"
	FieldDeliveryID = "delivery_id"
	FieldURL        = "url"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldAttempt    = "attempt"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldSubject    = "subject"
	FieldQueue      = "queue"
	FieldReason     = "reason"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// MessageID returns a slog attribute for an AS2 message ID.
func MessageID(id string) slog.Attr {
	return slog.String(FieldMessageID, id)
}

// Sender returns a slog attribute for the partnership sender ID.
func Sender(id string) slog.Attr {
	return slog.String(FieldSender, id)
}

// Receiver returns a slog attribute for the partnership receiver ID.
func Receiver(id string) slog.Attr {
	return slog.String(FieldReceiver, id)
}

// DeliveryID returns a slog attribute for a notification delivery ID.
func DeliveryID(id string) slog.Attr {
	return slog.String(FieldDeliveryID, id)
}

// URL returns a slog attribute for an endpoint URL.
func URL(url string) slog.Attr {
	return slog.String(FieldURL, url)
}

// Path returns a slog attribute for a filesystem path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Attempt returns a slog attribute for a 1-based delivery attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(FieldAttempt, n)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Subject returns a slog attribute for a message bus subject.
func Subject(subject string) slog.Attr {
	return slog.String(FieldSubject, subject)
}

// Queue returns a slog attribute for a queue group name.
func Queue(name string) slog.Attr {
	return slog.String(FieldQueue, name)
}

// Reason returns a slog attribute for a dead-letter reason.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}
