package rules

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gbforge/gbforge/internal/errs"
	"github.com/gbforge/gbforge/internal/platform"
	"github.com/gbforge/gbforge/mod/dep"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/qiniu/x/log"
	"github.com/zclconf/go-cty/cty"
)

type fileSchema struct {
	Revisions []*revisionBlock `hcl:"revision,block"`
}

type revisionBlock struct {
	Name      string          `hcl:"name,label"`
	Requires  []*requireBlock `hcl:"require,block"`
	Overrides []*requireBlock `hcl:"override,block"`
	Options   []*optionBlock  `hcl:"option,block"`
}

type requireBlock struct {
	Name    string       `hcl:"name,label"`
	Version string       `hcl:"version"`
	When    *whenBlock   `hcl:"when,block"`
	Copies  []*copyBlock `hcl:"copy,block"`
}

type optionBlock struct {
	Dep   string     `hcl:"dep,label"`
	Key   string     `hcl:"key,label"`
	Value cty.Value  `hcl:"value"`
	When  *whenBlock `hcl:"when,block"`
}

type whenBlock struct {
	OS           []string `hcl:"os,optional"`
	NotOS        []string `hcl:"not_os,optional"`
	Arch         []string `hcl:"arch,optional"`
	ArchContains []string `hcl:"arch_contains,optional"`
}

type copyBlock struct {
	Pattern string `hcl:"pattern"`
	Src     string `hcl:"src,optional"`
	Dst     string `hcl:"dst"`
}

// Load reads a rule table from an HCL file.
func Load(path string) (*Table, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ConfigurationError{What: "rule table", Err: err}
	}
	return Parse(path, src)
}

// Parse decodes a rule table from HCL source. filename is used in
// diagnostics only.
func Parse(filename string, src []byte) (*Table, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, &errs.ConfigurationError{What: "rule table " + filename, Err: diags}
	}

	var schema fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &schema); diags.HasErrors() {
		return nil, &errs.ConfigurationError{What: "rule table " + filename, Err: diags}
	}

	revisions := make([]*Revision, 0, len(schema.Revisions))
	for _, rb := range schema.Revisions {
		r, err := convertRevision(rb)
		if err != nil {
			return nil, &errs.ConfigurationError{What: "rule table " + filename, Err: err}
		}
		revisions = append(revisions, r)
	}
	t, err := newTable(revisions)
	if err != nil {
		return nil, &errs.ConfigurationError{What: "rule table " + filename, Err: err}
	}
	return t, nil
}

func convertRevision(rb *revisionBlock) (*Revision, error) {
	r := &Revision{Name: rb.Name}
	for _, b := range rb.Requires {
		rule, err := convertRule(b, false)
		if err != nil {
			return nil, fmt.Errorf("revision %s: require %q: %w", rb.Name, b.Name, err)
		}
		r.Requires = append(r.Requires, rule)
	}
	for _, b := range rb.Overrides {
		rule, err := convertRule(b, true)
		if err != nil {
			return nil, fmt.Errorf("revision %s: override %q: %w", rb.Name, b.Name, err)
		}
		r.Overrides = append(r.Overrides, rule)
	}
	for _, b := range rb.Options {
		opt, err := convertOption(b)
		if err != nil {
			return nil, fmt.Errorf("revision %s: option %s:%s: %w", rb.Name, b.Dep, b.Key, err)
		}
		r.Options = append(r.Options, opt)
	}
	return r, nil
}

func convertRule(b *requireBlock, override bool) (Rule, error) {
	if _, err := dep.EscapeName(b.Name); err != nil {
		return Rule{}, err
	}
	if err := dep.CheckVersion(b.Version); err != nil {
		return Rule{}, err
	}
	when, err := convertWhen(b.When)
	if err != nil {
		return Rule{}, err
	}
	d := dep.Descriptor{Name: b.Name, Version: b.Version, Override: override}
	for _, c := range b.Copies {
		rule, err := convertCopy(c)
		if err != nil {
			return Rule{}, err
		}
		d.Copies = append(d.Copies, rule)
	}
	return Rule{Dep: d, When: when}, nil
}

func convertOption(b *optionBlock) (OptionRule, error) {
	value, err := optionValue(b.Value)
	if err != nil {
		return OptionRule{}, err
	}
	when, err := convertWhen(b.When)
	if err != nil {
		return OptionRule{}, err
	}
	return OptionRule{Dep: b.Dep, Key: b.Key, Value: value, When: when}, nil
}

func convertWhen(b *whenBlock) (*Condition, error) {
	if b == nil {
		return nil, nil
	}
	c := &Condition{Arch: b.Arch, ArchContains: b.ArchContains}
	for _, s := range b.OS {
		o, err := platform.ParseOS(s)
		if err != nil {
			return nil, err
		}
		c.OS = append(c.OS, o)
	}
	for _, s := range b.NotOS {
		o, err := platform.ParseOS(s)
		if err != nil {
			return nil, err
		}
		c.NotOS = append(c.NotOS, o)
	}
	return c, nil
}

// legacyBindingPrefix is the misspelled binding pattern found in old
// recipes. It never matches the files imgui ships.
const (
	legacyBindingPrefix = "imgui_imp_sdl"
	bindingPrefix       = "imgui_impl_sdl"
)

func convertCopy(b *copyBlock) (dep.CopyRule, error) {
	pattern := b.Pattern
	if strings.HasPrefix(pattern, legacyBindingPrefix) {
		fixed := bindingPrefix + strings.TrimPrefix(pattern, legacyBindingPrefix)
		log.Warnf("copy pattern %q is misspelled, using %q", pattern, fixed)
		pattern = fixed
	}
	if !doublestar.ValidatePattern(pattern) {
		return dep.CopyRule{}, fmt.Errorf("copy pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}
	return dep.CopyRule{Pattern: pattern, Src: b.Src, Dst: b.Dst}, nil
}

func optionValue(v cty.Value) (string, error) {
	if v.IsNull() || !v.IsKnown() {
		return "", fmt.Errorf("value must be set")
	}
	switch ty := v.Type(); {
	case ty.Equals(cty.Bool):
		return strconv.FormatBool(v.True()), nil
	case ty.Equals(cty.String):
		return v.AsString(), nil
	case ty.Equals(cty.Number):
		return v.AsBigFloat().Text('f', -1), nil
	}
	return "", fmt.Errorf("unsupported value type %s", v.Type().FriendlyName())
}
