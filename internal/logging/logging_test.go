package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimonWaldherr/tsodbc/internal/config"
)

func TestLevelMapping(t *testing.T) {
	assert.Equal(t, logrus.PanicLevel, Level(config.LogOff))
	assert.Equal(t, logrus.ErrorLevel, Level(config.LogError))
	assert.Equal(t, logrus.WarnLevel, Level(config.LogWarning))
	assert.Equal(t, logrus.InfoLevel, Level(config.LogInfo))
	assert.Equal(t, logrus.DebugLevel, Level(config.LogDebug))
}

func TestFileOutput(t *testing.T) {
	dir := t.TempDir()
	c := config.Default()
	c.LogLevel = config.LogInfo
	c.LogOutput = dir

	l := New(c)
	l.WithField("query_id", "q-1").Info("page received")
	l.Debug("not written")

	b, err := os.ReadFile(FileName(dir, time.Now()))
	require.NoError(t, err)
	assert.Contains(t, string(b), "page received")
	assert.Contains(t, string(b), "query_id=q-1")
	assert.NotContains(t, string(b), "not written")
}

func TestOffDiscards(t *testing.T) {
	dir := t.TempDir()
	c := config.Default()
	c.LogLevel = config.LogOff
	c.LogOutput = dir
	New(c).Error("dropped")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, filepath.Join("logs", "tsodbc_20240309.log"), FileName("logs", ts))
}
