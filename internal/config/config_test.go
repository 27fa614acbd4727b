package config_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildweaver/internal/config"
)

func TestLoad_NoFileUsesBuiltinDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Jobs)
	assert.Equal(t, 1, cfg.NSerial)
	assert.True(t, math.IsInf(cfg.LoadAverage, 1))
	assert.Equal(t, filepath.Join(dir, ".cache", "buildpy"), cfg.CacheDir)
	assert.Equal(t, "info", cfg.Log)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	contents := "jobs: 8\nn_serial: 2\nload_average: 4.5\nlog: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "buildweaver.yaml"), []byte(contents), 0644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Jobs)
	assert.Equal(t, 2, cfg.NSerial)
	assert.Equal(t, 4.5, cfg.LoadAverage)
	assert.Equal(t, "debug", cfg.Log)
}

func TestApplyFlags_OnlyOverridesChangedFlags(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("jobs", 1, "")
	fs.Int("n-serial", 1, "")
	fs.Float64("load-average", math.Inf(1), "")
	fs.String("log", "info", "")
	require.NoError(t, fs.Parse([]string{"--jobs=16"}))

	merged, err := cfg.ApplyFlags(fs)
	require.NoError(t, err)

	assert.Equal(t, 16, merged.Jobs)
	assert.Equal(t, cfg.NSerial, merged.NSerial)
	assert.Equal(t, cfg.Log, merged.Log)
}
