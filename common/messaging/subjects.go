package messaging

import "strings"

// Subjects exchanged with the AS2 host.
const (
	// SubjectMessagesReceived carries one event per stored inbound AS2 message.
	SubjectMessagesReceived = "as2.messages.received"

	// SubjectDLQPrefix prefixes dead-letter subjects (as2hooks.dlq.<reason>).
	SubjectDLQPrefix = "as2hooks.dlq"
)

// QueueHookWorkers is the queue group shared by hook service instances so
// each received message is handled once.
const QueueHookWorkers = "as2hooks-workers"

// HeaderMessageID carries the AS2 message ID on dead-letter messages.
const HeaderMessageID = "AS2-Message-ID"

// DLQSubject returns the dead-letter subject for a failure reason.
// Example: as2hooks.dlq.transport_exhausted
func DLQSubject(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	return SubjectDLQPrefix + "." + strings.ReplaceAll(reason, ".", "_")
}
