package buildlog_test

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildweaver/internal/buildlog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":    slog.LevelDebug,
		"info":     slog.LevelInfo,
		"warning":  slog.LevelWarn,
		"error":    slog.LevelError,
		"critical": buildlog.LevelCritical,
	}
	for s, want := range cases {
		got, err := buildlog.ParseLevel(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := buildlog.ParseLevel("verbose")
	assert.Error(t, err)
}

func TestCriticalEmitsLevelAttribute(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)

	level, err := buildlog.ParseLevel("warning")
	require.NoError(t, err)
	logger := buildlog.New(level, w)

	buildlog.Critical(logger, "fatal during shutdown", "job", "build-all")
	require.NoError(t, w.Close())

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "fatal during shutdown")
	assert.Contains(t, out, "job=build-all")
	assert.True(t, strings.Contains(out, "level=") )
}

func TestNewDefaultsToStderrWhenNilWriterGiven(t *testing.T) {
	logger := buildlog.New(slog.LevelInfo, nil)
	assert.NotNil(t, logger)
}
