// Package dep defines the dependency descriptor along with support code.
package dep

import (
	"fmt"
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/mod/semver"
)

// A Descriptor is one third-party requirement of the application,
// identified by Name within a resolved set.
type Descriptor struct {
	Name     string     `json:"name"`
	Version  string     `json:"version"`
	Override bool       `json:"override,omitempty"`
	Options  Options    `json:"options,omitempty"`
	Copies   []CopyRule `json:"copies,omitempty"`
}

// Options are the per-dependency toggles handed to the package tool.
type Options map[string]string

// CopyRule copies the files of a dependency matching Pattern below Src
// into Dst once the dependency is available.
type CopyRule struct {
	Pattern string `json:"pattern"`
	Src     string `json:"src"`
	Dst     string `json:"dst"`
}

// Ref returns the "name/version" reference of d.
func (d Descriptor) Ref() string {
	return d.Name + "/" + d.Version
}

func (d Descriptor) String() string {
	if d.Override {
		return d.Ref() + " (override)"
	}
	return d.Ref()
}

// Clone returns a deep copy of d.
func (d Descriptor) Clone() Descriptor {
	d.Options = maps.Clone(d.Options)
	d.Copies = slices.Clone(d.Copies)
	return d
}

// Equal reports whether d and o are structurally identical.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.Name == o.Name &&
		d.Version == o.Version &&
		d.Override == o.Override &&
		maps.Equal(d.Options, o.Options) &&
		slices.Equal(d.Copies, o.Copies)
}

// Version pins that are not semantic versions but are common in package
// recipes: ConanCenter date snapshots and letter patch releases.
var (
	snapshotVersion = regexp.MustCompile(`^cci\.[0-9]{8}$`)
	letterVersion   = regexp.MustCompile(`^[0-9]+(\.[0-9]+){0,2}[a-z]+$`)
	providerVersion = regexp.MustCompile(`^[A-Za-z][A-Za-z_-]*$`)
)

// CheckVersion reports whether version is usable as a pin. Accepted forms:
// semantic versions once prefixed with "v" ("9.1.0", "2.9"), snapshots
// ("cci.20230105"), letter patch releases ("1.1.1t"), and a plain word
// pinning a provider instead of a release ("system").
func CheckVersion(version string) error {
	switch {
	case version == "":
		return fmt.Errorf("empty version")
	case semver.IsValid("v" + version) && version[0] >= '0' && version[0] <= '9',
		snapshotVersion.MatchString(version),
		letterVersion.MatchString(version),
		providerVersion.MatchString(version):
		return nil
	}
	return fmt.Errorf("invalid version %q", version)
}

// EscapeName returns the escaped form of the given dependency name as a
// valid file name. It fails if the name is not local.
func EscapeName(name string) (escaped string, err error) {
	escaped, err = filepath.Localize(name)
	if err != nil {
		return "", err
	}
	if strings.ContainsRune(escaped, filepath.Separator) {
		return "", fmt.Errorf("invalid dependency name %q", name)
	}
	return escaped, nil
}

// Sort sorts a list of descriptors by name, then by version.
func Sort(list []Descriptor) {
	slices.SortStableFunc(list, func(a, b Descriptor) int {
		if a.Name != b.Name {
			return strings.Compare(a.Name, b.Name)
		}
		return compareVersion(a.Version, b.Version)
	})
}

func compareVersion(v1, v2 string) int {
	sv1, sv2 := "v"+v1, "v"+v2
	if semver.IsValid(sv1) && semver.IsValid(sv2) {
		return semver.Compare(sv1, sv2)
	}
	return strings.Compare(v1, v2)
}
