// Copyright (c) 2026 The gbforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package build sequences the native build, installs its outputs into a
// package layout and deploys the runtime subset of that layout.
package build

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gbforge/gbforge/internal/errs"
	"github.com/gbforge/gbforge/internal/generate"
	"github.com/gbforge/gbforge/internal/platform"
	"github.com/gbforge/gbforge/mod/dep"
	"github.com/qiniu/x/log"
)

// Options configure a Builder.
type Options struct {
	Platform   platform.Descriptor
	SourceDir  string
	BuildRoot  string
	InstallDir string
	// Executable is the base name of the application binary.
	Executable string
	// Archive also writes InstallDir + ".zip" when packaging.
	Archive bool
	// Driver defaults to a CMakeDriver.
	Driver Driver
}

// BuildOptions toggle the optional passes of the native build. Both are
// off unless set.
type BuildOptions struct {
	ClangTidy  bool
	Sanitizers bool
	// Defines are passed to the native build as string variables.
	Defines map[string]string
}

// Result describes a successful build.
type Result struct {
	Platform   platform.Descriptor
	Configs    []platform.Config
	BuildDirs  map[platform.Config]string
	InstallDir string
}

// Builder runs build, package and deploy for one platform.
type Builder struct {
	opts   Options
	driver Driver
}

// NewBuilder validates opts and returns a Builder.
func NewBuilder(opts Options) (*Builder, error) {
	if err := opts.Platform.Validate(); err != nil {
		return nil, err
	}
	if opts.SourceDir == "" || opts.BuildRoot == "" || opts.InstallDir == "" {
		return nil, errs.Configf("source, build and install directories are required")
	}
	if _, err := dep.EscapeName(opts.Executable); err != nil || opts.Executable == "" {
		return nil, errs.Configf("invalid executable name %q", opts.Executable)
	}
	b := &Builder{opts: opts, driver: opts.Driver}
	if b.driver == nil {
		b.driver = &CMakeDriver{}
	}
	return b, nil
}

// BuildDir returns the build directory of config, keyed by the matrix
// combination of the platform and config.
func (b *Builder) BuildDir(config platform.Config) string {
	p := b.opts.Platform.Clone()
	p.Configs = []platform.Config{config}
	m := p.Matrix()
	combo := strings.ReplaceAll(m.Combinations()[0], "|", "-")
	return filepath.Join(b.opts.BuildRoot, combo)
}

// Build configures and builds every configuration of the platform against
// inputs. It stops at the first failure.
func (b *Builder) Build(ctx context.Context, inputs *generate.InputSet, bo BuildOptions) (*Result, error) {
	p := b.opts.Platform
	for _, c := range p.Configs {
		if !inputs.Has(c) {
			return nil, errs.Configf("no build inputs for %s in %s", c, inputs.Dir)
		}
	}

	res := &Result{
		Platform:   p.Clone(),
		BuildDirs:  make(map[platform.Config]string),
		InstallDir: b.opts.InstallDir,
	}
	for _, c := range p.Configs {
		dir := b.BuildDir(c)
		if err := removeStamp(dir); err != nil {
			return nil, &errs.StageFailure{Stage: errs.StageBuild, Err: err}
		}
		job := b.job(c, inputs, bo)
		log.Infof("build: %s %s in %s", p.Key(), c, dir)
		if err := b.driver.Configure(ctx, job); err != nil {
			return nil, &errs.StageFailure{Stage: errs.StageBuild, Err: fmt.Errorf("configure %s: %w", c, err), Output: diagnostic(err)}
		}
		if err := b.driver.Build(ctx, job); err != nil {
			return nil, &errs.StageFailure{Stage: errs.StageBuild, Err: fmt.Errorf("build %s: %w", c, err), Output: diagnostic(err)}
		}
		s := &stamp{
			Platform:  p.Key(),
			Config:    string(c),
			Toolchain: inputs.Toolchain,
			BuildTime: time.Now(),
		}
		if err := saveStamp(dir, s); err != nil {
			return nil, &errs.StageFailure{Stage: errs.StageBuild, Err: err}
		}
		res.Configs = append(res.Configs, c)
		res.BuildDirs[c] = dir
	}
	return res, nil
}

func (b *Builder) job(c platform.Config, inputs *generate.InputSet, bo BuildOptions) *Job {
	job := &Job{
		SourceDir:  b.opts.SourceDir,
		BuildDir:   b.BuildDir(c),
		InstallDir: b.opts.InstallDir,
		Toolchain:  inputs.Toolchain,
		PrefixPath: inputs.Dir,
		Config:     c,
		Bools: map[string]bool{
			"ENABLE_CLANG_TIDY": bo.ClangTidy,
			"ENABLE_SANITIZERS": bo.Sanitizers,
		},
		Strings: map[string]string{"GBFORGE_EXECUTABLE": b.opts.Executable},
	}
	for k, v := range bo.Defines {
		job.Strings[k] = v
	}
	return job
}

// Run builds, packages and deploys into targetDir, aborting at the first
// failing stage.
func (b *Builder) Run(ctx context.Context, inputs *generate.InputSet, bo BuildOptions, targetDir string) ([]Artifact, error) {
	res, err := b.Build(ctx, inputs, bo)
	if err != nil {
		return nil, err
	}
	layout, err := b.Package(ctx, res)
	if err != nil {
		return nil, err
	}
	return b.Deploy(layout, targetDir)
}
