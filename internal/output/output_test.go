package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestMessages(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(w *bytes.Buffer)
		prefix string
		text   string
	}{
		{"success", func(w *bytes.Buffer) { Success(w, "Purged %d entries", 3) }, "✓", "Purged 3 entries"},
		{"error", func(w *bytes.Buffer) { Error(w, "failed: %s", "boom") }, "✗", "failed: boom"},
		{"warn", func(w *bytes.Buffer) { Warn(w, "DLQ disabled") }, "⚠", "DLQ disabled"},
		{"info", func(w *bytes.Buffer) { Info(w, "archived to %s", "x.txt") }, "", "archived to x.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.fn(&buf)
			assert.True(t, strings.HasPrefix(buf.String(), tt.prefix))
			assert.Contains(t, buf.String(), tt.text)
			assert.True(t, strings.HasSuffix(buf.String(), "\n"))
		})
	}
}

func TestStructured(t *testing.T) {
	v := map[string]any{"reason": "rejected", "attempts": 1}

	var buf bytes.Buffer
	ok, err := Structured(&buf, "json", v)
	require.NoError(t, err)
	assert.True(t, ok)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "rejected", decoded["reason"])

	buf.Reset()
	ok, err = Structured(&buf, "yaml", v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, buf.String(), "reason: rejected")

	buf.Reset()
	ok, err = Structured(&buf, "table", v)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, buf.String())
}

func TestTable_Render(t *testing.T) {
	table := NewTable("MESSAGE ID", "REASON")
	table.AddRow("123456", "transport_exhausted")
	table.AddRow("7", "rejected")

	var buf bytes.Buffer
	table.Render(&buf)

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "MESSAGE ID  REASON"))
	assert.True(t, strings.HasPrefix(lines[1], "----------  -------------------"))
	assert.True(t, strings.HasPrefix(lines[2], "123456      transport_exhausted"))
	assert.True(t, strings.HasPrefix(lines[3], "7           rejected"))
}
