package build

import (
	"context"
	"errors"
	"io"
	"maps"
	"slices"

	"github.com/gbforge/gbforge/internal/platform"
	"github.com/gbforge/gbforge/x/cmake"
)

// Job is one configuration of the native build.
type Job struct {
	SourceDir  string
	BuildDir   string
	InstallDir string
	Toolchain  string
	// PrefixPath is where the generated package config files live.
	PrefixPath string
	Config     platform.Config
	Bools      map[string]bool
	Strings    map[string]string
}

// Driver runs the native build system.
type Driver interface {
	Configure(ctx context.Context, job *Job) error
	Build(ctx context.Context, job *Job) error
	Install(ctx context.Context, job *Job) error
}

// CMakeDriver runs jobs with cmake.
type CMakeDriver struct {
	// Generator is passed to "cmake -G" when set.
	Generator string
	Stdout    io.Writer
	Stderr    io.Writer
}

func (d *CMakeDriver) Configure(ctx context.Context, job *Job) error {
	return d.cmake(job).Configure(ctx)
}

func (d *CMakeDriver) Build(ctx context.Context, job *Job) error {
	return d.cmake(job).Build(ctx)
}

func (d *CMakeDriver) Install(ctx context.Context, job *Job) error {
	return d.cmake(job).Install(ctx)
}

func (d *CMakeDriver) cmake(job *Job) *cmake.CMake {
	c := cmake.New(job.SourceDir, job.BuildDir, job.InstallDir)
	c.Stdout, c.Stderr = d.Stdout, d.Stderr
	if d.Generator != "" {
		c.Generator(d.Generator)
	}
	c.BuildType(string(job.Config))
	if job.Toolchain != "" {
		c.Toolchain(job.Toolchain)
	}
	if job.PrefixPath != "" {
		c.Use(job.PrefixPath)
	}
	for _, k := range slices.Sorted(maps.Keys(job.Bools)) {
		c.DefineBool(k, job.Bools[k])
	}
	for _, k := range slices.Sorted(maps.Keys(job.Strings)) {
		c.Define(k, job.Strings[k])
	}
	return c
}

// diagnostic returns the tool output carried by err.
func diagnostic(err error) string {
	var cmErr *cmake.Error
	if errors.As(err, &cmErr) {
		return cmErr.Stderr
	}
	return ""
}
