package logging

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_CreatesDirAndLogger(t *testing.T) {
	dir := t.TempDir() + "/nested"
	log, err := NewLogger(dir, "debug")
	require.NoError(t, err)
	defer func() { _ = log.Sync() }()

	_, err = os.Stat(dir)
	require.NoError(t, err)

	log.Info("test_message_from_logging_test")

	// lumberjack opens the file lazily on first write
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(t.TempDir(), "loud")
	assert.ErrorContains(t, err, "invalid log level")

	_, err = NewConsoleLogger("loud")
	assert.Error(t, err)
}
