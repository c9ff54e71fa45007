package logging_test

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condition-engine/logging"
)

func TestNew_FiltersByLevelWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelWarn)

	logger.Info("hidden")
	logger.Warn("commit aborted", slog.Int("applied", 2))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "commit aborted")
	assert.Contains(t, out, "applied=2")
	assert.NotContains(t, out, "\x1b[", "no ANSI escapes when not a terminal")
}

func TestNew_RegularFileIsNotATerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer f.Close()

	logging.New(f, slog.LevelInfo).Info("written to file")

	raw, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "written to file")
	assert.NotContains(t, string(raw), "\x1b[")
}
