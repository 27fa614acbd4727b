// Command buildweaver is the reference entrypoint for the engine: an empty
// "all" target, ready for a project to extend by declaring its own jobs
// against the dsl.Build before calling cli.NewRootCommand.
package main

import (
	"fmt"
	"os"

	"buildweaver/internal/cli"
	"buildweaver/internal/dsl"
	"buildweaver/internal/job"
	"buildweaver/internal/resource"
)

func main() {
	build := dsl.New(false)
	if _, err := build.Phony("all", nil, func(*job.Job) error { return nil }, dsl.PhonyOpts{
		Desc: "default target; a project build script declares real jobs here",
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	registry := resource.NewRegistry()
	registry.Register("file", resource.NewLocalAdapter())
	registry.Register("gs", resource.NewGCSAdapter())
	registry.Register("bq", resource.NewBigQueryAdapter())

	if err := cli.NewRootCommand(build, registry).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
