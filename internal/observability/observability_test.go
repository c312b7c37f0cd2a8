package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("row rejected", "city", "北京")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "row rejected", rec["msg"])
	assert.Equal(t, "北京", rec["city"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "text")

	logger.Debug("hello", "date", "2025-03-20")

	assert.Contains(t, buf.String(), "date=2025-03-20")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestMetrics_Register(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	m.RowsRead.Add(3)
	m.RowWarnings.WithLabelValues("bad_date").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsRead))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowWarnings.WithLabelValues("bad_date")))
	assert.Error(t, m.Register(reg), "double registration fails")
}
