// Copyright (c) 2026 The gbforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rules loads the versioned dependency rule table.
//
// A table is an HCL file made of revision blocks:
//
//	revision "v2" {
//	  require "sdl" { version = "2.26.1" }
//	  override "nas" {
//	    version = "1.9.4"
//	    when { arch_contains = ["arm"] }
//	  }
//	  option "boost" "header_only" { value = true }
//	}
package rules

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gbforge/gbforge/internal/errs"
	"github.com/gbforge/gbforge/internal/platform"
	"github.com/gbforge/gbforge/mod/dep"
	"golang.org/x/mod/semver"
)

//go:embed rules.hcl
var defaultRules []byte

// Condition restricts a rule to matching platforms. A nil Condition
// matches every platform; empty lists do not restrict.
type Condition struct {
	OS           []platform.OS
	NotOS        []platform.OS
	Arch         []string
	ArchContains []string
}

// Match reports whether p satisfies every constraint of c.
func (c *Condition) Match(p platform.Descriptor) bool {
	if c == nil {
		return true
	}
	if len(c.OS) > 0 && !slices.Contains(c.OS, p.OS) {
		return false
	}
	if slices.Contains(c.NotOS, p.OS) {
		return false
	}
	if len(c.Arch) > 0 && !slices.Contains(c.Arch, p.Arch) {
		return false
	}
	if len(c.ArchContains) > 0 && !slices.ContainsFunc(c.ArchContains, func(s string) bool {
		return strings.Contains(p.Arch, s)
	}) {
		return false
	}
	return true
}

// Rule contributes a dependency when its condition matches.
type Rule struct {
	Dep  dep.Descriptor
	When *Condition
}

// OptionRule sets Dep:Key=Value when its condition matches.
type OptionRule struct {
	Dep   string
	Key   string
	Value string
	When  *Condition
}

// Revision is one complete rule set.
type Revision struct {
	Name      string
	Requires  []Rule
	Overrides []Rule
	Options   []OptionRule
}

// Table holds revisions ordered from oldest to newest.
type Table struct {
	revisions []*Revision
}

// Names returns the revision names, oldest first.
func (t *Table) Names() []string {
	names := make([]string, len(t.revisions))
	for i, r := range t.revisions {
		names[i] = r.Name
	}
	return names
}

// Latest returns the newest revision.
func (t *Table) Latest() *Revision {
	return t.revisions[len(t.revisions)-1]
}

// Revision returns the named revision. An empty name selects the latest.
func (t *Table) Revision(name string) (*Revision, error) {
	if name == "" {
		return t.Latest(), nil
	}
	for _, r := range t.revisions {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, errs.Configf("unknown rule revision %q (have %s)", name, strings.Join(t.Names(), ", "))
}

func newTable(revisions []*Revision) (*Table, error) {
	if len(revisions) == 0 {
		return nil, fmt.Errorf("no revision defined")
	}
	seen := make(map[string]bool, len(revisions))
	for _, r := range revisions {
		if !semver.IsValid(r.Name) {
			return nil, fmt.Errorf("revision %q: name must be a semantic version like v2", r.Name)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("revision %q defined twice", r.Name)
		}
		seen[r.Name] = true
	}
	slices.SortFunc(revisions, func(a, b *Revision) int {
		return semver.Compare(a.Name, b.Name)
	})
	return &Table{revisions: revisions}, nil
}

var loadDefault = sync.OnceValues(func() (*Table, error) {
	return Parse("rules.hcl", defaultRules)
})

// Default returns the built-in rule table.
func Default() (*Table, error) {
	return loadDefault()
}
