package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// UnknownID replaces a missing message, sender or receiver identifier.
	UnknownID = "UNKNOWN"

	// TimestampLayout is ISO-8601 at second precision without a zone offset.
	TimestampLayout = "2006-01-02T15:04:05"
)

// ReceivedMessage is the metadata snapshot of one stored inbound AS2 message.
// It is passed by value so every consumer sees the same capture time.
type ReceivedMessage struct {
	MessageID       string    `json:"message_id"`
	SenderID        string    `json:"sender_id"`
	ReceiverID      string    `json:"receiver_id"`
	PayloadSize     int64     `json:"payload_size"`
	PayloadFilename string    `json:"payload_filename"`
	ReceivedAt      time.Time `json:"received_at"`
}

// NewReceivedMessage builds a snapshot from host-supplied metadata, filling in
// UNKNOWN identifiers, a zero size for unknown sizes and a synthesized filename
// when the host has none.
func NewReceivedMessage(messageID, senderID, receiverID string, payloadSize int64, payloadFilename string, now time.Time) ReceivedMessage {
	if payloadSize < 0 {
		payloadSize = 0
	}
	filename := strings.TrimSpace(payloadFilename)
	if filename == "" {
		filename = FallbackFilename(now)
	}

	return ReceivedMessage{
		MessageID:       orUnknown(messageID),
		SenderID:        orUnknown(senderID),
		ReceiverID:      orUnknown(receiverID),
		PayloadSize:     payloadSize,
		PayloadFilename: filename,
		ReceivedAt:      now.Truncate(time.Second),
	}
}

// Normalize applies the same substitutions as NewReceivedMessage to a value
// decoded from the wire. A zero ReceivedAt is replaced with now.
func (m ReceivedMessage) Normalize(now time.Time) ReceivedMessage {
	if !m.ReceivedAt.IsZero() {
		now = m.ReceivedAt
	}
	return NewReceivedMessage(m.MessageID, m.SenderID, m.ReceiverID, m.PayloadSize, m.PayloadFilename, now)
}

// Timestamp renders ReceivedAt in TimestampLayout.
func (m ReceivedMessage) Timestamp() string {
	return m.ReceivedAt.Format(TimestampLayout)
}

// FallbackFilename is the name used when the host did not record a payload filename.
func FallbackFilename(now time.Time) string {
	return fmt.Sprintf("order_%d.xml", now.UnixMilli())
}

func orUnknown(id string) string {
	if strings.TrimSpace(id) == "" {
		return UnknownID
	}
	return id
}
