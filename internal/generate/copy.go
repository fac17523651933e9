package generate

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gbforge/gbforge/internal/errs"
	"github.com/gbforge/gbforge/mod/dep"
	"github.com/qiniu/x/log"
)

// applyCopies runs the copy rules of deps and returns the destination
// paths, sorted by dependency then walk order.
func (g *Generator) applyCopies(deps []dep.Descriptor) ([]string, error) {
	var copied []string
	for _, d := range deps {
		if len(d.Copies) == 0 {
			continue
		}
		root, ok := g.PackageRoots[d.Name]
		if !ok {
			log.Debugf("generate: no package root for %s, skipping %d copy rules", d.Name, len(d.Copies))
			continue
		}
		for _, rule := range d.Copies {
			files, err := copyMatching(filepath.Join(root, filepath.FromSlash(rule.Src)), filepath.Join(g.dir, filepath.FromSlash(rule.Dst)), rule.Pattern)
			if err != nil {
				return nil, &errs.GenerationError{What: "copy rule " + rule.Pattern + " of " + d.Name, Err: err}
			}
			if len(files) == 0 {
				log.Warnf("generate: copy rule %s of %s matched no file under %s", rule.Pattern, d.Name, rule.Src)
			}
			copied = append(copied, files...)
		}
	}
	return copied, nil
}

// copyMatching copies every regular file below src whose slash-separated
// relative path matches pattern into dst, keeping the relative layout.
// Symlinks to files are copied as the file they point to.
func copyMatching(src, dst, pattern string) ([]string, error) {
	var copied []string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			fi, err := os.Stat(path)
			if err != nil || !fi.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		ok, err := doublestar.Match(pattern, filepath.ToSlash(rel))
		if err != nil || !ok {
			return err
		}
		target := filepath.Join(dst, rel)
		if err := copyFile(path, target); err != nil {
			return err
		}
		copied = append(copied, target)
		return nil
	})
	return copied, err
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
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
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
