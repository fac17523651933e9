// Package env names the directories gbforge works in below a project.
package env

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gbforge/gbforge/internal/platform"
)

// Layout places every per-platform directory below Root.
//
//	<root>/build/<platform>/generators  generated build inputs
//	<root>/build/<platform>/<combo>     one build directory per config
//	<root>/build/<platform>/package     install prefix
//	<root>/dist/<platform>              deployed artifacts
type Layout struct {
	Root string
}

// WorkDir returns the layout rooted at the current directory.
func WorkDir() (Layout, error) {
	wd, err := os.Getwd()
	if err != nil {
		return Layout{}, err
	}
	return Layout{Root: wd}, nil
}

func (l Layout) BuildRoot(d platform.Descriptor) string {
	return filepath.Join(l.Root, "build", dirName(d.Key()))
}

func (l Layout) InputsDir(d platform.Descriptor) string {
	return filepath.Join(l.BuildRoot(d), "generators")
}

func (l Layout) InstallDir(d platform.Descriptor) string {
	return filepath.Join(l.BuildRoot(d), "package")
}

func (l Layout) DeployDir(d platform.Descriptor) string {
	return filepath.Join(l.Root, "dist", dirName(d.Key()))
}

func dirName(key string) string {
	return strings.ReplaceAll(key, "|", "-")
}
