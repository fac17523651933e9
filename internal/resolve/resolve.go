// Copyright (c) 2026 The gbforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package resolve computes the dependency set of a platform.
package resolve

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gbforge/gbforge/internal/errs"
	"github.com/gbforge/gbforge/internal/platform"
	"github.com/gbforge/gbforge/internal/rules"
	"github.com/gbforge/gbforge/mod/dep"
)

// Request carries the caller's explicit choices. Nothing else outside the
// platform descriptor influences resolution.
type Request struct {
	// Revision selects a rule table revision; empty means latest.
	Revision string
	// Options are applied after the table's options, keyed by
	// dependency name then option key.
	Options map[string]dep.Options
}

// Plan is the resolved dependency set of one platform.
type Plan struct {
	revision string
	platform platform.Descriptor
	deps     []dep.Descriptor
}

// Revision returns the rule revision the plan was resolved with.
func (p *Plan) Revision() string { return p.revision }

// Platform returns the platform the plan was resolved for.
func (p *Plan) Platform() platform.Descriptor { return p.platform.Clone() }

// Dependencies returns a copy of the resolved descriptors, sorted by name.
func (p *Plan) Dependencies() []dep.Descriptor {
	out := make([]dep.Descriptor, len(p.deps))
	for i, d := range p.deps {
		out[i] = d.Clone()
	}
	return out
}

// Lookup returns the descriptor named name.
func (p *Plan) Lookup(name string) (dep.Descriptor, bool) {
	i, ok := slices.BinarySearchFunc(p.deps, name, func(d dep.Descriptor, name string) int {
		return strings.Compare(d.Name, name)
	})
	if !ok {
		return dep.Descriptor{}, false
	}
	return p.deps[i].Clone(), true
}

// Equal reports whether p and o are structurally identical.
func (p *Plan) Equal(o *Plan) bool {
	if p.revision != o.revision || len(p.deps) != len(o.deps) {
		return false
	}
	for i := range p.deps {
		if !p.deps[i].Equal(o.deps[i]) {
			return false
		}
	}
	return true
}

// Manifest returns the descriptor set in its external form.
func (p *Plan) Manifest() *dep.Manifest {
	return &dep.Manifest{
		Revision: p.revision,
		Platform: p.platform.Key(),
		Requires: p.Dependencies(),
	}
}

// Resolver resolves platforms against a rule table.
type Resolver struct {
	table *rules.Table
}

// New returns a Resolver backed by table.
func New(table *rules.Table) *Resolver {
	return &Resolver{table: table}
}

// Resolve computes the dependency plan of p. It fails with a
// ConfigurationError for unsupported platforms or unknown revisions and
// with a ResolutionConflictError when two plain requirements disagree and
// no override settles them.
func (r *Resolver) Resolve(p platform.Descriptor, req Request) (*Plan, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rev, err := r.table.Revision(req.Revision)
	if err != nil {
		return nil, err
	}

	// Baseline and conditional requirements.
	selected := make(map[string]dep.Descriptor)
	conflicts := make(map[string][]string)
	for _, rule := range rev.Requires {
		if !rule.When.Match(p) {
			continue
		}
		d := rule.Dep
		prev, ok := selected[d.Name]
		if !ok {
			selected[d.Name] = d.Clone()
			continue
		}
		if prev.Version != d.Version {
			if conflicts[d.Name] == nil {
				conflicts[d.Name] = []string{prev.Version}
			}
			if !slices.Contains(conflicts[d.Name], d.Version) {
				conflicts[d.Name] = append(conflicts[d.Name], d.Version)
			}
			continue
		}
		prev.Copies = append(prev.Copies, d.Copies...)
		selected[d.Name] = prev
	}

	// Overrides always win, may introduce new names and are the only way
	// to settle a conflict between requirements.
	for _, rule := range rev.Overrides {
		if !rule.When.Match(p) {
			continue
		}
		applyOverride(selected, rule.Dep)
		delete(conflicts, rule.Dep.Name)
	}
	if len(conflicts) > 0 {
		name := slices.Sorted(maps.Keys(conflicts))[0]
		return nil, &errs.ResolutionConflictError{Name: name, Versions: conflicts[name]}
	}

	for _, o := range rev.Options {
		if !o.When.Match(p) {
			continue
		}
		if err := setOption(selected, o.Dep, o.Key, o.Value); err != nil {
			return nil, err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(req.Options)) {
		opts := req.Options[name]
		for _, key := range slices.Sorted(maps.Keys(opts)) {
			if err := setOption(selected, name, key, opts[key]); err != nil {
				return nil, err
			}
		}
	}

	deps := slices.Collect(maps.Values(selected))
	dep.Sort(deps)
	return &Plan{revision: rev.Name, platform: p.Clone(), deps: deps}, nil
}

// applyOverride pins the entry named o.Name to the override's version, or
// inserts o when there is none. Copy rules of the override replace the
// entry's own when present. Applying the same override twice is a no-op.
func applyOverride(selected map[string]dep.Descriptor, o dep.Descriptor) {
	d, ok := selected[o.Name]
	if !ok {
		selected[o.Name] = o.Clone()
		return
	}
	d.Version = o.Version
	d.Override = true
	if len(o.Copies) > 0 {
		d.Copies = slices.Clone(o.Copies)
	}
	selected[o.Name] = d
}

func setOption(selected map[string]dep.Descriptor, name, key, value string) error {
	d, ok := selected[name]
	if !ok {
		return errs.Configf("option %s:%s set for a dependency that is not resolved", name, key)
	}
	if d.Options == nil {
		d.Options = dep.Options{}
	}
	d.Options[key] = value
	selected[name] = d
	return nil
}

// ParseOptions parses "name:key=value" entries into a Request option map.
func ParseOptions(entries []string) (map[string]dep.Options, error) {
	out := make(map[string]dep.Options)
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		ref, value, ok := strings.Cut(e, "=")
		name, key, ok2 := strings.Cut(ref, ":")
		if !ok || !ok2 || name == "" || key == "" {
			return nil, errs.Configf("invalid option %q, expected name:key=value", e)
		}
		if out[name] == nil {
			out[name] = dep.Options{}
		}
		out[name][key] = value
	}
	return out, nil
}

func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", p.platform.Key(), p.revision)
	for _, d := range p.deps {
		b.WriteString("\n  " + d.String())
	}
	return b.String()
}
