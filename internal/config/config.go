// Package config loads the optional project-level defaults
// (buildweaver.yaml / buildweaver.toml) layered underneath explicit CLI
// flags, per SPEC_FULL.md §6. File values provide defaults; a flag the user
// actually set on the command line always wins.
package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the resolved set of driver defaults, after the project file (if
// any) has been read but before flag overrides are applied.
type Config struct {
	Jobs        int
	NSerial     int
	LoadAverage float64
	CacheDir    string
	Log         string
}

// defaults mirrors the CLI's own flag defaults (spec.md §6), so a project
// with no config file behaves identically to one with an empty file.
func defaults(workDir string) Config {
	return Config{
		Jobs:        1,
		NSerial:     1,
		LoadAverage: math.Inf(1),
		CacheDir:    filepath.Join(workDir, ".cache", "buildpy"),
		Log:         "info",
	}
}

// Load reads buildweaver.{yaml,toml} from workDir, if present, layering it
// over the built-in defaults. A missing file is not an error; a malformed
// one is.
func Load(workDir string) (Config, error) {
	d := defaults(workDir)

	v := viper.New()
	v.SetConfigName("buildweaver")
	v.AddConfigPath(workDir)
	v.SetDefault("jobs", d.Jobs)
	v.SetDefault("n_serial", d.NSerial)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("log", d.Log)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}

	cfg := Config{
		Jobs:        v.GetInt("jobs"),
		NSerial:     v.GetInt("n_serial"),
		LoadAverage: d.LoadAverage,
		CacheDir:    v.GetString("cache_dir"),
		Log:         v.GetString("log"),
	}
	if v.IsSet("load_average") {
		cfg.LoadAverage = v.GetFloat64("load_average")
	}
	return cfg, nil
}

// ApplyFlags overrides cfg's fields with any flag the user actually passed
// on the command line, leaving file/built-in defaults in place for flags
// left untouched.
func (c Config) ApplyFlags(fs *pflag.FlagSet) (Config, error) {
	if fs.Changed("jobs") {
		v, err := fs.GetInt("jobs")
		if err != nil {
			return c, err
		}
		c.Jobs = v
	}
	if fs.Changed("n-serial") {
		v, err := fs.GetInt("n-serial")
		if err != nil {
			return c, err
		}
		c.NSerial = v
	}
	if fs.Changed("load-average") {
		v, err := fs.GetFloat64("load-average")
		if err != nil {
			return c, err
		}
		c.LoadAverage = v
	}
	if fs.Changed("log") {
		v, err := fs.GetString("log")
		if err != nil {
			return c, err
		}
		c.Log = v
	}
	return c, nil
}
