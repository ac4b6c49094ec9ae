package models

import "time"

// InboxPrefix is prepended to the payload filename to form the notification path.
const InboxPrefix = "/as2/inbox/"

// NotificationPayload is the JSON body POSTed to the webhook endpoint.
// Field order is part of the wire format.
type NotificationPayload struct {
	Filename  string `json:"filename"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

// NewNotificationPayload builds the payload for msg.
func NewNotificationPayload(msg ReceivedMessage) NotificationPayload {
	return NotificationPayload{
		Filename:  msg.PayloadFilename,
		Path:      InboxPrefix + msg.PayloadFilename,
		Timestamp: msg.Timestamp(),
	}
}

// Dead-letter reasons.
const (
	ReasonTransportExhausted = "transport_exhausted"
	ReasonRejected           = "rejected"
	ReasonInterrupted        = "interrupted"
)

// FailedNotification is a dead-letter record for a notification that
// reached a terminal failure.
type FailedNotification struct {
	Timestamp   time.Time           `json:"timestamp"`
	DeliveryID  string              `json:"delivery_id"`
	MessageID   string              `json:"message_id"`
	Endpoint    string              `json:"endpoint"`
	Payload     NotificationPayload `json:"payload"`
	Error       string              `json:"error"`
	Reason      string              `json:"reason"`
	Attempts    int                 `json:"attempts"`
	LastAttempt time.Time           `json:"last_attempt"`
}
