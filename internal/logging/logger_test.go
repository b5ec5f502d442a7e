package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aqasim81/depmigrate/internal/logging"
)

func TestNew_console_writesKeyValues(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)

	logger, err := logging.New("info", logging.FormatConsole, buf)
	require.NoError(t, err)

	logger.Info("migration completed", zap.String("filename", "001_create_users.sql"))

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "migration completed")
	assert.Contains(t, out, `"filename": "001_create_users.sql"`)
}

func TestNew_json_writesObjects(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)

	logger, err := logging.New("debug", logging.FormatJSON, buf)
	require.NoError(t, err)

	logger.Debug("resolved", zap.Int("total", 3))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "resolved", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
	assert.InDelta(t, 3, entry["total"], 0)
}

func TestNew_levelFiltersLowerEntries(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)

	logger, err := logging.New("warn", logging.FormatConsole, buf)
	require.NoError(t, err)

	logger.Info("hidden")
	assert.Empty(t, buf.String())
}

func TestNew_invalidInputs_returnError(t *testing.T) {
	t.Parallel()

	_, err := logging.New("loud", logging.FormatConsole, new(bytes.Buffer))
	require.Error(t, err)

	_, err = logging.New("info", "xml", new(bytes.Buffer))
	require.Error(t, err)
}
