package messaging

import (
	"testing"
	"time"
)

func TestMessage_ZeroValue(t *testing.T) {
	var msg Message

	if msg.Subject != "" {
		t.Errorf("expected empty Subject, got %q", msg.Subject)
	}
	if msg.Data != nil {
		t.Errorf("expected nil Data, got %v", msg.Data)
	}
	if msg.Metadata != nil {
		t.Errorf("expected nil Metadata, got %v", msg.Metadata)
	}
	if !msg.Timestamp.IsZero() {
		t.Errorf("expected zero Timestamp, got %v", msg.Timestamp)
	}
}

func TestWithHeader(t *testing.T) {
	tests := []struct {
		name     string
		headers  []struct{ key, value string }
		expected map[string]string
	}{
		{
			name:     "single header",
			headers:  []struct{ key, value string }{{HeaderMessageID, "abc"}},
			expected: map[string]string{HeaderMessageID: "abc"},
		},
		{
			name: "multiple headers",
			headers: []struct{ key, value string }{
				{"X-First", "first"},
				{"X-Second", "second"},
			},
			expected: map[string]string{"X-First": "first", "X-Second": "second"},
		},
		{
			name: "overwrite header",
			headers: []struct{ key, value string }{
				{"X-Key", "original"},
				{"X-Key", "updated"},
			},
			expected: map[string]string{"X-Key": "updated"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &PublishOptions{}
			for _, h := range tt.headers {
				WithHeader(h.key, h.value)(opts)
			}

			if len(opts.Headers) != len(tt.expected) {
				t.Fatalf("expected %d headers, got %d", len(tt.expected), len(opts.Headers))
			}
			for k, v := range tt.expected {
				if opts.Headers[k] != v {
					t.Errorf("expected header %q=%q, got %q", k, v, opts.Headers[k])
				}
			}
		})
	}
}

func TestNewMessage(t *testing.T) {
	before := time.Now()
	msg := NewMessage("as2hooks.dlq.rejected", []byte("{}"), WithHeader(HeaderMessageID, "m-1"))

	if msg.Subject != "as2hooks.dlq.rejected" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if msg.Metadata[HeaderMessageID] != "m-1" {
		t.Errorf("expected message id header, got %v", msg.Metadata)
	}
	if msg.Timestamp.Before(before) {
		t.Errorf("timestamp %v predates construction", msg.Timestamp)
	}

	bare := NewMessage("x", nil)
	if bare.Metadata != nil {
		t.Errorf("expected nil metadata without options, got %v", bare.Metadata)
	}
}
