package dsl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildweaver/internal/dsl"
	"buildweaver/internal/job"
)

func TestBuild_FileDeclarationRegistersJob(t *testing.T) {
	b := dsl.New(false)
	j, err := b.File(
		[]string{"file://localhost/out.txt"},
		[]string{"file://localhost/in.txt"},
		func(*job.Job) error { return nil },
		dsl.FileOpts{Desc: "builds out.txt"},
	)
	require.NoError(t, err)

	got, ok := b.Jobs.Lookup("file://localhost/out.txt")
	require.True(t, ok)
	assert.Same(t, j, got)
}

func TestBuild_PhonyDeclarationRegistersJob(t *testing.T) {
	b := dsl.New(false)
	_, err := b.Phony("all", []string{"file://localhost/out.txt"}, func(*job.Job) error { return nil }, dsl.PhonyOpts{})
	require.NoError(t, err)

	got, ok := b.Jobs.Lookup("all")
	require.True(t, ok)
	assert.Equal(t, job.KindPhony, got.Kind)
}

func TestBuild_MetaRecordsCredentialAndReturnsURI(t *testing.T) {
	b := dsl.New(false)
	uri := b.Meta("gs://bucket/obj", job.Options{Credential: "/path/to/key.json", Keep: true})
	assert.Equal(t, "gs://bucket/obj", uri)

	opts := b.Metadata.Get(uri)
	assert.Equal(t, "/path/to/key.json", opts.Credential)
	assert.True(t, opts.Keep)
}

func TestBuild_FileUsesBuildDefaultUseHashWhenUnset(t *testing.T) {
	b := dsl.New(true)
	j, err := b.File([]string{"file://localhost/out.txt"}, nil, func(*job.Job) error { return nil }, dsl.FileOpts{})
	require.NoError(t, err)
	assert.True(t, j.UseHash)

	override := false
	j2, err := b.File([]string{"file://localhost/out2.txt"}, nil, func(*job.Job) error { return nil }, dsl.FileOpts{UseHash: &override})
	require.NoError(t, err)
	assert.False(t, j2.UseHash)
}
