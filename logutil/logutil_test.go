package logutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"debug":    LevelDebug,
		"INFO":     LevelInfo,
		"warn":     LevelWarning,
		"warning":  LevelWarning,
		"error":    LevelError,
		"critical": LevelCritical,
		"none":     LevelNone,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("chatty")
	assert.Error(t, err)
}

func TestFileLoggingRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copy.log")
	l := New(LevelWarning, false)
	require.NoError(t, l.EnableFile(path, true))

	l.Debugf("dropped %d", 1)
	l.Infof("dropped too")
	l.Warningf("kept warning")
	l.Errorf("kept error")
	require.NoError(t, l.Close())

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(out)
	assert.NotContains(t, s, "dropped")
	assert.Contains(t, s, "[WARNING] kept warning")
	assert.Contains(t, s, "[ERROR] kept error")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Infof("no panic")
	l.SetLevel(LevelDebug)
	l.EnableConsole(true)
	assert.NoError(t, l.EnableFile("ignored", true))
	assert.NoError(t, l.Close())
}

func TestLevelChangeTakesEffect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copy.log")
	l := New(LevelNone, false)
	require.NoError(t, l.EnableFile(path, false))

	l.Criticalf("suppressed")
	l.SetLevel(LevelDebug)
	l.Debugf("visible")
	require.NoError(t, l.Close())

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "suppressed")
	assert.Contains(t, string(out), "visible")
}
