package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureWritesComponentAndService(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test"})
	t.Cleanup(func() { Configure(Config{Output: &bytes.Buffer{}}) })

	logger := WithComponent("extract")
	logger.Debug().Str(FieldURL, "https://example.com/a").Msg("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test", entry[FieldService])
	assert.Equal(t, "extract", entry[FieldComponent])
	assert.Equal(t, "https://example.com/a", entry[FieldURL])
	assert.Equal(t, "hello", entry["message"])
}

func TestConfigureRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "warn", Output: &buf})
	t.Cleanup(func() { Configure(Config{Output: &bytes.Buffer{}}) })

	logger := Base()
	logger.Info().Msg("dropped")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestConfigureWithFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notegrab.log")
	var buf bytes.Buffer
	Configure(Config{Output: &buf, File: path})

	logger := Base()
	logger.Info().Msg("to both")
	require.NoError(t, Close())
	t.Cleanup(func() { Configure(Config{Output: &bytes.Buffer{}}) })

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}
