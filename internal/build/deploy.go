package build

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gbforge/gbforge/internal/errs"
	"github.com/gbforge/gbforge/internal/platform"
	"github.com/qiniu/x/log"
)

// Category classifies a deployed file.
type Category string

const (
	Executable Category = "executable"
	Binding    Category = "binding"
)

// Artifact is one file copied by Deploy.
type Artifact struct {
	SourcePath string
	DestPath   string
	Category   Category
}

// bindingPatterns match the shared objects of the UI toolkit's SDL
// bindings, by base name.
var bindingPatterns = []string{
	"imgui_impl_sdl*.{so,dll,dylib}",
	"imgui_impl_sdl*.so.*",
	"libimgui_impl_sdl*.{so,dylib}",
	"libimgui_impl_sdl*.so.*",
}

// runtimeNames returns the file names of the executable and its companion
// files on target.
func runtimeNames(name string, target platform.OS) []string {
	names := []string{name, name + ".exe"}
	if target == platform.Web {
		names = append(names, name+".js", name+".wasm", name+".html", name+".data", name+".worker.js")
	}
	return names
}

func classify(base, name string, target platform.OS) (Category, bool) {
	if slices.Contains(runtimeNames(name, target), base) {
		return Executable, true
	}
	for _, pattern := range bindingPatterns {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return Binding, true
		}
	}
	return "", false
}

// Deploy copies the executable and the binding shared objects of layout
// into targetDir, flattened. Symlinks, such as the soname links of a
// versioned shared object, are deployed as copies of their target. The
// files are staged next to targetDir and replace its previous content only
// once every copy succeeded.
func (b *Builder) Deploy(layout *Layout, targetDir string) ([]Artifact, error) {
	if layout.Executable == "" {
		return nil, &errs.StageFailure{Stage: errs.StageDeploy, Err: fmt.Errorf("layout has no executable")}
	}
	staging := filepath.Clean(targetDir) + ".tmp"
	for _, dir := range []string{targetDir, staging} {
		if err := checkTarget(layout.Root, dir); err != nil {
			return nil, &errs.StageFailure{Stage: errs.StageDeploy, Err: err}
		}
	}

	var selected []Artifact
	seen := make(map[string]string)
	err := filepath.WalkDir(layout.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		cat, ok := classify(d.Name(), layout.Name, layout.Platform.OS)
		if !ok {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			fi, err := os.Stat(path)
			if err != nil || !fi.Mode().IsRegular() {
				log.Warnf("deploy: skipping %s: link does not resolve to a file", path)
				return nil
			}
		}
		if prev, dup := seen[d.Name()]; dup {
			return fmt.Errorf("%s and %s would both deploy as %s", prev, path, d.Name())
		}
		seen[d.Name()] = path
		selected = append(selected, Artifact{
			SourcePath: path,
			DestPath:   filepath.Join(targetDir, d.Name()),
			Category:   cat,
		})
		return nil
	})
	if err != nil {
		return nil, &errs.StageFailure{Stage: errs.StageDeploy, Err: err}
	}

	if err := stage(staging, selected); err != nil {
		os.RemoveAll(staging)
		return nil, &errs.StageFailure{Stage: errs.StageDeploy, Err: err}
	}
	if err := os.RemoveAll(targetDir); err != nil {
		os.RemoveAll(staging)
		return nil, &errs.StageFailure{Stage: errs.StageDeploy, Err: fmt.Errorf("clean %s: %w", targetDir, err)}
	}
	if err := os.Rename(staging, targetDir); err != nil {
		os.RemoveAll(staging)
		return nil, &errs.StageFailure{Stage: errs.StageDeploy, Err: err}
	}
	for _, a := range selected {
		log.Debugf("deploy: %s %s", a.Category, a.DestPath)
	}
	slices.SortFunc(selected, func(a, b Artifact) int { return strings.Compare(a.DestPath, b.DestPath) })
	log.Infof("deploy: %d files into %s", len(selected), targetDir)
	return selected, nil
}

// stage copies the selected files into a fresh dir.
func stage(dir string, selected []Artifact) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, a := range selected {
		if err := copyArtifact(a.SourcePath, filepath.Join(dir, filepath.Base(a.DestPath))); err != nil {
			return err
		}
	}
	return nil
}

// copyArtifact is replaced in tests.
var copyArtifact = copyFile

// checkTarget refuses a target overlapping the package: cleaning it would
// delete the package, or walking the package would find old deployments.
func checkTarget(root, target string) error {
	r, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	t, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	if within(t, r) || within(r, t) {
		return fmt.Errorf("deploy target %s overlaps the package %s", target, root)
	}
	return nil
}

// within reports whether path is dir or below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
