package platform

import (
	"maps"
	"slices"
)

// Matrix is the set of axes a build is keyed by: Require holds the
// platform axes, Options the per-build ones.
type Matrix struct {
	Require map[string][]string
	Options map[string][]string
}

// Combinations returns the cartesian product of m, for example
// "x86_64-gcc-desktop-linux|Release". Axes are taken in key order and keep
// their value order; the option part follows the platform part after "|".
func (m *Matrix) Combinations() []string {
	req, opts := product(m.Require), product(m.Options)
	if len(req) == 0 {
		return opts
	}
	if len(opts) == 0 {
		return req
	}
	out := make([]string, 0, len(req)*len(opts))
	for _, r := range req {
		for _, o := range opts {
			out = append(out, r+"|"+o)
		}
	}
	return out
}

func product(axes map[string][]string) []string {
	var out []string
	for i, key := range slices.Sorted(maps.Keys(axes)) {
		if i == 0 {
			out = slices.Clone(axes[key])
			continue
		}
		next := make([]string, 0, len(out)*len(axes[key]))
		for _, prev := range out {
			for _, v := range axes[key] {
				next = append(next, prev+"-"+v)
			}
		}
		out = next
	}
	return out
}
