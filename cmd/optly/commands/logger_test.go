package commands

import (
	"bytes"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	t.Run("writes JSON lines with fields", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer

		logger := NewLogger(&buf, "debug")
		logger.Debug("search page fetched", map[string]interface{}{"page": 2})

		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "debug", line["level"])
		assert.Equal(t, "search page fetched", line["message"])
		assert.InDelta(t, 2.0, line["page"], 0.0001)
	})

	t.Run("filters below level", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer

		logger := NewLogger(&buf, "warn")
		logger.Info("hidden", nil)
		assert.Empty(t, buf.String())

		logger.Error("shown", nil)
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("invalid level falls back to warn", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer

		logger := NewLogger(&buf, "chatty")
		logger.Info("hidden", nil)
		logger.Warn("visible", nil)

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "visible")
	})
}
