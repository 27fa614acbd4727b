// Package dsl is the user-facing build-script declaration API: the Go
// equivalent of the original tool's DSL.file/phony/meta methods. A build
// script constructs a *Build, declares jobs against it, and hands the
// result to internal/driver.
package dsl

import (
	"buildweaver/internal/job"
)

// Build accumulates job declarations and per-URI metadata for one
// invocation of the engine. It is not safe for concurrent declaration; build
// scripts run single-threaded during the declaration phase.
type Build struct {
	Jobs     *job.Set
	Metadata *job.Metadata

	// UseHash is the default passed to File when a declaration omits its own
	// useHash argument.
	UseHash bool
}

// New creates an empty Build.
func New(useHash bool) *Build {
	return &Build{
		Jobs:     job.NewSet(),
		Metadata: job.NewMetadata(),
		UseHash:  useHash,
	}
}

// FileOpts configures a File declaration; zero value is the engine's
// defaults (general queue, default priority, no use-hash override).
type FileOpts struct {
	Desc     string
	UseHash  *bool // nil defers to Build.UseHash
	Serial   bool
	Priority int
	Data     job.Data
}

// File declares a job that produces targets from deps by running action.
// Returns the registered job, or an error if targets collide with an
// existing job declaring a different action.
func (b *Build) File(targets, deps []string, action job.Action, opts FileOpts) (*job.Job, error) {
	useHash := b.UseHash
	if opts.UseHash != nil {
		useHash = *opts.UseHash
	}
	j := job.NewFile(targets, deps, opts.Desc, useHash, opts.Serial, opts.Priority, opts.Data)
	if err := j.SetAction(action); err != nil {
		return nil, err
	}
	return b.Jobs.Add(j)
}

// PhonyOpts configures a Phony declaration.
type PhonyOpts struct {
	Desc     string
	Priority int
	Data     job.Data
}

// Phony declares a job with no file target: its action always runs when
// reached, for tasks like "all", "test", "clean".
func (b *Build) Phony(target string, deps []string, action job.Action, opts PhonyOpts) (*job.Job, error) {
	j, err := job.NewPhony(target, deps, opts.Desc, opts.Priority, opts.Data)
	if err != nil {
		return nil, err
	}
	if err := j.SetAction(action); err != nil {
		return nil, err
	}
	return b.Jobs.Add(j)
}

// Meta attaches per-URI metadata (credential, keep) ahead of graph
// construction, mirroring the original's `dsl.meta(uri, **kwargs)`.
func (b *Build) Meta(uri string, opts job.Options) string {
	return b.Metadata.Set(uri, opts)
}
