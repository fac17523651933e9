// Copyright (c) 2026 The gbforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package platform describes the target a build is resolved for.
package platform

import (
	"slices"
	"strings"

	"github.com/gbforge/gbforge/internal/errs"
)

// OS identifies the target operating system family.
type OS string

const (
	Linux   OS = "desktop-linux"
	Windows OS = "desktop-windows"
	MacOS   OS = "desktop-macos"
	Web     OS = "web"
)

// Config is a named build variant.
type Config string

const (
	Debug   Config = "Debug"
	Release Config = "Release"
)

// Lower returns the lowercase form used in generated file names.
func (c Config) Lower() string {
	return strings.ToLower(string(c))
}

// supportedArch lists the architectures each OS can be built for.
var supportedArch = map[OS][]string{
	Linux:   {"x86_64", "x86", "armv7", "armv7hf", "armv8"},
	Windows: {"x86_64", "x86", "armv8"},
	MacOS:   {"x86_64", "armv8"},
	Web:     {"wasm"},
}

// Descriptor is the tuple of OS, architecture, compiler and requested build
// configurations driving resolution.
type Descriptor struct {
	OS       OS
	Arch     string
	Compiler string
	Configs  []Config
}

// ParseOS accepts both the descriptor names and the short host names.
func ParseOS(s string) (OS, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desktop-linux", "linux":
		return Linux, nil
	case "desktop-windows", "windows":
		return Windows, nil
	case "desktop-macos", "macos", "darwin":
		return MacOS, nil
	case "web", "emscripten", "wasm":
		return Web, nil
	}
	return "", errs.Configf("unknown os %q", s)
}

// ParseConfig parses a build configuration name case-insensitively.
func ParseConfig(s string) (Config, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug, nil
	case "release":
		return Release, nil
	}
	return "", errs.Configf("unknown build configuration %q", s)
}

// Validate reports a ConfigurationError for unsupported os/arch combinations
// and empty or repeated configuration lists.
func (d Descriptor) Validate() error {
	archs, ok := supportedArch[d.OS]
	if !ok {
		return errs.Configf("unsupported os %q", d.OS)
	}
	if !slices.Contains(archs, d.Arch) {
		return errs.Configf("unsupported arch %q for %s", d.Arch, d.OS)
	}
	if d.Compiler == "" {
		return errs.Configf("compiler is not set")
	}
	if len(d.Configs) == 0 {
		return errs.Configf("no build configuration requested")
	}
	seen := make(map[Config]bool, len(d.Configs))
	for _, c := range d.Configs {
		if c != Debug && c != Release {
			return errs.Configf("unknown build configuration %q", c)
		}
		if seen[c] {
			return errs.Configf("build configuration %s requested twice", c)
		}
		seen[c] = true
	}
	return nil
}

// Matrix returns the build matrix of d: os/arch/compiler are required
// axes, the build type is the only option axis.
func (d Descriptor) Matrix() Matrix {
	types := make([]string, len(d.Configs))
	for i, c := range d.Configs {
		types[i] = string(c)
	}
	return Matrix{
		Require: map[string][]string{
			"os":       {string(d.OS)},
			"arch":     {d.Arch},
			"compiler": {d.Compiler},
		},
		Options: map[string][]string{
			"build_type": types,
		},
	}
}

// Key returns the configuration-independent matrix key of d, for
// example "x86_64-gcc-desktop-linux".
func (d Descriptor) Key() string {
	m := d.Matrix()
	m.Options = nil
	return m.Combinations()[0]
}

func (d Descriptor) Clone() Descriptor {
	d.Configs = slices.Clone(d.Configs)
	return d
}
