package log_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/CZERTAINLY/Prospect/internal/log"
	"github.com/stretchr/testify/require"
)

func TestContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, false)

	parent := log.ContextAttrs(t.Context(), slog.String("job", "abc123"))
	child1 := log.ContextAttrs(parent, slog.Int("generation", 1))
	child2 := log.ContextAttrs(parent, slog.Int("generation", 2))

	logger.InfoContext(child1, "polling")
	logger.InfoContext(child2, "polling")
	logger.DebugContext(child2, "hidden")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	for idx, line := range lines {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		require.Equal(t, "polling", rec["msg"])
		require.Equal(t, "abc123", rec["job"])
		require.Equal(t, float64(idx+1), rec["generation"])
	}
}

func TestVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, true).With("cmd", "run")
	logger.DebugContext(log.ContextAttrs(t.Context(), slog.String("job", "j1")), "visible")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "DEBUG", rec["level"])
	require.Equal(t, "run", rec["cmd"])
	require.Equal(t, "j1", rec["job"])
}
