// Copyright (c) 2026 The gbforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package generate writes the files the native build uses to locate
// resolved dependencies.
//
// Output directory layout:
//
//	outDir/
//	  gbforge_toolchain.cmake        # written once per Generate call
//	  manifest.json                  # resolved descriptor set
//	  <name>-config.cmake            # config-agnostic, includes every data file present
//	  <name>-<config>-data.cmake     # one per dependency and configuration
//	  deps-<config>.cmake            # per configuration index
package generate

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gbforge/gbforge/internal/errs"
	"github.com/gbforge/gbforge/internal/platform"
	"github.com/gbforge/gbforge/internal/resolve"
	"github.com/gbforge/gbforge/mod/dep"
	"github.com/qiniu/x/log"
)

const (
	ToolchainFile = "gbforge_toolchain.cmake"
	ManifestFile  = "manifest.json"

	header = "# Generated by gbforge. Do not edit.\n\n"
)

// knownConfigs is the order in which a dependency's config file includes
// the per-configuration data files.
var knownConfigs = []platform.Config{platform.Debug, platform.Release}

// InputSet describes the generated build inputs.
type InputSet struct {
	Dir       string
	Toolchain string
	Manifest  string
	// Configs maps each discoverable configuration to its files.
	Configs map[platform.Config][]string
	// Copied lists the files placed by copy rules.
	Copied []string
}

// Has reports whether the metadata of config is present.
func (s *InputSet) Has(config platform.Config) bool {
	_, ok := s.Configs[config]
	return ok
}

// ConfigList returns the discoverable configurations in a stable order.
func (s *InputSet) ConfigList() []platform.Config {
	var out []platform.Config
	for _, c := range knownConfigs {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Generator writes build inputs into one shared directory.
type Generator struct {
	dir string

	// PackageRoots maps a dependency name to the directory its package was
	// installed to. Copy rules of dependencies without a root are skipped.
	PackageRoots map[string]string
}

// New returns a Generator writing to outDir.
func New(outDir string) *Generator {
	return &Generator{dir: outDir}
}

// Dir returns the output directory.
func (g *Generator) Dir() string { return g.dir }

// Generate writes the toolchain and manifest once, then the lookup metadata
// of each configuration in the order given. Files of configurations not in
// configs are left untouched.
func (g *Generator) Generate(plan *resolve.Plan, configs []platform.Config) (*InputSet, error) {
	if len(configs) == 0 {
		return nil, &errs.GenerationError{What: "no build configuration given"}
	}
	for _, c := range configs {
		if !slices.Contains(knownConfigs, c) {
			return nil, &errs.GenerationError{What: fmt.Sprintf("unknown build configuration %q", c)}
		}
	}
	p := plan.Platform()
	tc, err := newToolchain(p)
	if err != nil {
		return nil, &errs.GenerationError{What: "toolchain for " + p.Key(), Err: err}
	}
	deps := plan.Dependencies()
	names := make([]string, len(deps))
	for i, d := range deps {
		if names[i], err = dep.EscapeName(d.Name); err != nil {
			return nil, &errs.GenerationError{What: "dependency " + d.Name, Err: err}
		}
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, &errs.GenerationError{What: "output directory", Err: err}
	}
	if err := g.write(ToolchainFile, tc.render(deps)); err != nil {
		return nil, err
	}
	if err := plan.Manifest().Write(filepath.Join(g.dir, ManifestFile)); err != nil {
		return nil, &errs.GenerationError{What: ManifestFile, Err: err}
	}
	for i, d := range deps {
		if err := g.write(names[i]+"-config.cmake", configFile(names[i], d)); err != nil {
			return nil, err
		}
	}

	for _, c := range configs {
		log.Debugf("generate: %s metadata for %d dependencies", c, len(deps))
		for i, d := range deps {
			if err := g.write(dataFileName(names[i], c), g.dataFile(names[i], d, c)); err != nil {
				return nil, err
			}
		}
		if err := g.write(indexFileName(c), indexFile(names, c)); err != nil {
			return nil, err
		}
	}

	copied, err := g.applyCopies(deps)
	if err != nil {
		return nil, err
	}
	set, err := Discover(g.dir)
	if err != nil {
		return nil, err
	}
	set.Copied = copied
	return set, nil
}

// Discover returns the inputs present in dir. A configuration is
// discoverable when its index and the data file of every dependency in the
// manifest exist.
func Discover(dir string) (*InputSet, error) {
	manifestPath := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &errs.GenerationError{What: "no build inputs in " + dir, Err: err}
	}
	m, err := dep.ParseManifest(data)
	if err != nil {
		return nil, &errs.GenerationError{What: "manifest", Err: err}
	}
	set := &InputSet{
		Dir:       dir,
		Toolchain: filepath.Join(dir, ToolchainFile),
		Manifest:  manifestPath,
		Configs:   make(map[platform.Config][]string),
	}
	if _, err := os.Stat(set.Toolchain); err != nil {
		return nil, &errs.GenerationError{What: "toolchain", Err: err}
	}

next:
	for _, c := range knownConfigs {
		files := []string{filepath.Join(dir, indexFileName(c))}
		for _, d := range m.Requires {
			name, err := dep.EscapeName(d.Name)
			if err != nil {
				return nil, &errs.GenerationError{What: "manifest", Err: err}
			}
			files = append(files, filepath.Join(dir, dataFileName(name, c)))
		}
		for _, f := range files {
			if _, err := os.Stat(f); err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					return nil, &errs.GenerationError{What: "discover " + string(c), Err: err}
				}
				continue next
			}
		}
		set.Configs[c] = files
	}
	return set, nil
}

func dataFileName(name string, c platform.Config) string {
	return name + "-" + c.Lower() + "-data.cmake"
}

func indexFileName(c platform.Config) string {
	return "deps-" + c.Lower() + ".cmake"
}

// write replaces name in the output directory. An identical file is left
// as is so repeated generation does not touch timestamps the native build
// watches.
func (g *Generator) write(name, content string) error {
	path := filepath.Join(g.dir, name)
	if old, err := os.ReadFile(path); err == nil && bytes.Equal(old, []byte(content)) {
		return nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &errs.GenerationError{What: name, Err: err}
	}
	return nil
}

func configFile(name string, d dep.Descriptor) string {
	var b strings.Builder
	b.WriteString(header)
	fmt.Fprintf(&b, "set(%s_VERSION %s)\n", name, quote(d.Version))
	fmt.Fprintf(&b, "set(%s_CONFIGURATIONS \"\")\n", name)
	for _, c := range knownConfigs {
		fmt.Fprintf(&b, "include(\"${CMAKE_CURRENT_LIST_DIR}/%s\" OPTIONAL)\n", dataFileName(name, c))
	}
	fmt.Fprintf(&b, "if(NOT %s_CONFIGURATIONS)\n", name)
	fmt.Fprintf(&b, "  set(%s_FOUND FALSE)\n", name)
	fmt.Fprintf(&b, "  set(%s_NOT_FOUND_MESSAGE \"no configuration generated for %s\")\n", name, name)
	b.WriteString("  return()\nendif()\n")
	fmt.Fprintf(&b, "set(%s_FOUND TRUE)\n", name)
	return b.String()
}

func (g *Generator) dataFile(name string, d dep.Descriptor, c platform.Config) string {
	cfg := strings.ToUpper(c.Lower())
	var b strings.Builder
	b.WriteString(header)
	fmt.Fprintf(&b, "list(APPEND %s_CONFIGURATIONS %s)\n", name, c)
	fmt.Fprintf(&b, "set(%s_VERSION_%s %s)\n", name, cfg, quote(d.Version))
	override := "OFF"
	if d.Override {
		override = "ON"
	}
	fmt.Fprintf(&b, "set(%s_OVERRIDE_%s %s)\n", name, cfg, override)
	fmt.Fprintf(&b, "set(%s_PACKAGE_FOLDER_%s %s)\n", name, cfg, quote(filepath.ToSlash(g.PackageRoots[d.Name])))
	var opts []string
	for _, key := range slices.Sorted(maps.Keys(d.Options)) {
		opts = append(opts, key+"="+d.Options[key])
	}
	fmt.Fprintf(&b, "set(%s_OPTIONS_%s %s)\n", name, cfg, quote(strings.Join(opts, ";")))
	return b.String()
}

func indexFile(names []string, c platform.Config) string {
	var b strings.Builder
	b.WriteString(header)
	fmt.Fprintf(&b, "set(GBFORGE_DEPENDENCIES_%s %s)\n", strings.ToUpper(c.Lower()), quote(strings.Join(names, ";")))
	return b.String()
}
