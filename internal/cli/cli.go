// Package cli wires the engine's stable flag surface (spec.md §6) onto
// github.com/spf13/cobra, mirroring the CLI library jinterlante1206-
// AleutianLocal uses directly for its own command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"buildweaver/internal/buildlog"
	"buildweaver/internal/config"
	"buildweaver/internal/driver"
	"buildweaver/internal/dsl"
	"buildweaver/internal/graphbuild"
	"buildweaver/internal/resource"
	"buildweaver/internal/watch"
)

// Version is set at link time via -ldflags; "dev" otherwise.
var Version = "dev"

// noOptDefVal is the `nargs="?"`-style sentinel shared by -Q and -J: the flag
// was passed with no argument, meaning "print to stdout" rather than "flag
// absent."
const noOptDefVal = "\x00stdout\x00"

// NewRootCommand builds the buildweaver command tree over build, the
// caller's declared jobs.
func NewRootCommand(build *dsl.Build, registry *resource.Registry) *cobra.Command {
	var (
		jobs            int
		nSerial         int
		loadAverage     float64
		keepGoing       bool
		descriptions    bool
		dependencies    bool
		dependenciesDot string
		dependenciesJSON string
		dryRun          bool
		cut             []string
		logLevel        string
		cacheDir        string
		watchMode       bool
		tracePath       string
		showVersion     bool
	)

	cmd := &cobra.Command{
		Use:   "buildweaver [targets...]",
		Short: "mtime/hash-staleness build automation engine",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), Version)
				return nil
			}

			workDir, err := os.Getwd()
			if err != nil {
				return err
			}
			fileCfg, err := config.Load(workDir)
			if err != nil {
				return err
			}
			merged, err := fileCfg.ApplyFlags(cmd.Flags())
			if err != nil {
				return err
			}
			if cacheDir != "" {
				merged.CacheDir = cacheDir
			}

			level, err := buildlog.ParseLevel(merged.Log)
			if err != nil {
				return err
			}
			logger := buildlog.New(level, os.Stderr)

			targets := args
			if len(targets) == 0 {
				targets = []string{"all"}
			}

			var dot, jsonPath *string
			if cmd.Flags().Changed("dependencies-dot") {
				dot = resolveOptionalPath(dependenciesDot)
			}
			if cmd.Flags().Changed("dependencies-json") {
				jsonPath = resolveOptionalPath(dependenciesJSON)
			}

			var traceWriter *os.File
			if tracePath != "" {
				traceWriter, err = os.Create(tracePath)
				if err != nil {
					return fmt.Errorf("cli: opening --trace file: %w", err)
				}
				defer traceWriter.Close()
			}

			d := driver.New(build, registry, merged.CacheDir)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := driver.Options{
				Targets:          targets,
				NMax:             merged.Jobs,
				NSerial:          merged.NSerial,
				LoadAverage:      merged.LoadAverage,
				KeepGoing:        keepGoing,
				DryRun:           dryRun,
				Cut:              cut,
				Descriptions:     descriptions,
				Dependencies:     dependencies,
				DependenciesDot:  dot,
				DependenciesJSON: jsonPath,
				Logger:           logger,
				Stdout:           cmd.OutOrStdout(),
			}
			if traceWriter != nil {
				opts.TraceWriter = traceWriter
			}

			runOnce := func(ctx context.Context) (int, error) { return d.Run(ctx, opts) }

			if !watchMode {
				code, runErr := runOnce(ctx)
				if code != 0 {
					os.Exit(code)
				}
				return runErr
			}

			return runWatchLoop(ctx, d, opts, logger)
		},
	}

	fs := cmd.Flags()
	fs.IntVarP(&jobs, "jobs", "j", 1, "max general-worker parallelism")
	fs.IntVar(&nSerial, "n-serial", 1, "max concurrent serial jobs")
	fs.Float64VarP(&loadAverage, "load-average", "l", 0, "admission threshold (default +Inf)")
	fs.BoolVarP(&keepGoing, "keep-going", "k", false, "on action failure, continue independent jobs")
	fs.BoolVarP(&descriptions, "descriptions", "D", false, "print target descriptions and exit")
	fs.BoolVarP(&dependencies, "dependencies", "P", false, "print the DAG and exit")
	fs.StringVarP(&dependenciesDot, "dependencies-dot", "Q", "", "emit Graphviz DOT and exit (path optional, default stdout)")
	fs.Lookup("dependencies-dot").NoOptDefVal = noOptDefVal
	fs.StringVarP(&dependenciesJSON, "dependencies-json", "J", "", "emit JSON dependency dump and exit (path optional, default stdout)")
	fs.Lookup("dependencies-json").NoOptDefVal = noOptDefVal
	fs.BoolVarP(&dryRun, "dry-run", "n", false, "print what would be executed")
	fs.StringArrayVar(&cut, "cut", nil, "treat TARGET as an external input (repeatable)")
	fs.StringVar(&logLevel, "log", "info", "debug|info|warning|error|critical")
	fs.StringVar(&cacheDir, "cache-dir", "", "hash-cache root (default ./.cache/buildpy)")
	fs.BoolVar(&watchMode, "watch", false, "rebuild targets whenever a local dependency changes")
	fs.StringVar(&tracePath, "trace", "", "write one JSON trace line per completed job to PATH")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")

	return cmd
}

// resolveOptionalPath turns the NoOptDefVal sentinel into "" (stdout);
// otherwise returns the user-supplied path.
func resolveOptionalPath(v string) *string {
	if v == noOptDefVal {
		empty := ""
		return &empty
	}
	return &v
}

func runWatchLoop(ctx context.Context, d *driver.Driver, opts driver.Options, logger *slog.Logger) error {
	w, err := watch.New(logger)
	if err != nil {
		return err
	}
	defer w.Close()

	rebuild := func(ctx context.Context) {
		if _, runErr := d.Run(ctx, opts); runErr != nil {
			logger.Error("watch: rebuild failed", "error", runErr)
		}
	}

	rebuild(ctx)

	cut := make(map[string]bool, len(opts.Cut))
	for _, t := range opts.Cut {
		cut[t] = true
	}
	graph, err := graphbuild.Build(d.Build.Jobs, d.Build.Metadata, opts.Targets, cut)
	if err != nil {
		return err
	}
	if err := w.Watch(graph); err != nil {
		return err
	}

	return w.Run(ctx, rebuild)
}
