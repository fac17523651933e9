package build

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gbforge/gbforge/internal/errs"
	"github.com/gbforge/gbforge/internal/platform"
	"github.com/qiniu/x/log"
)

// Layout is an installed package.
type Layout struct {
	Platform platform.Descriptor
	Root     string
	// Executable is the installed application entry point.
	Executable string
	// Name is the base name of the application.
	Name    string
	Archive string
}

// Package installs every built configuration into the install prefix.
// Configurations are installed in build order, so files both install are
// taken from the last one.
func (b *Builder) Package(ctx context.Context, res *Result) (*Layout, error) {
	if len(res.Configs) == 0 {
		return nil, &errs.StageFailure{Stage: errs.StagePackage, Err: fmt.Errorf("nothing was built")}
	}
	key := res.Platform.Key()
	for _, c := range res.Configs {
		s, err := loadStamp(res.BuildDirs[c])
		if err == nil {
			err = s.matches(key, string(c))
		}
		if err != nil {
			return nil, &errs.StageFailure{Stage: errs.StagePackage, Err: fmt.Errorf("%s has no complete build: %w", c, err)}
		}
	}

	for _, c := range res.Configs {
		job := &Job{
			SourceDir:  b.opts.SourceDir,
			BuildDir:   res.BuildDirs[c],
			InstallDir: res.InstallDir,
			Config:     c,
		}
		log.Infof("package: install %s into %s", c, res.InstallDir)
		if err := b.driver.Install(ctx, job); err != nil {
			return nil, &errs.StageFailure{Stage: errs.StagePackage, Err: fmt.Errorf("install %s: %w", c, err), Output: diagnostic(err)}
		}
	}

	layout := &Layout{
		Platform: res.Platform.Clone(),
		Root:     res.InstallDir,
		Name:     b.opts.Executable,
	}
	exe, err := findExecutable(layout.Root, layout.Name, layout.Platform.OS)
	if err != nil {
		return nil, &errs.StageFailure{Stage: errs.StagePackage, Err: err}
	}
	layout.Executable = exe

	if b.opts.Archive {
		layout.Archive = filepath.Clean(layout.Root) + ".zip"
		if err := zipDir(layout.Root, layout.Archive); err != nil {
			return nil, &errs.StageFailure{Stage: errs.StagePackage, Err: fmt.Errorf("archive: %w", err)}
		}
	}
	return layout, nil
}

// entryNames lists the possible file names of the application entry point.
func entryNames(name string, target platform.OS) []string {
	switch target {
	case platform.Windows:
		return []string{name + ".exe"}
	case platform.Web:
		return []string{name + ".html", name + ".js"}
	}
	return []string{name}
}

func findExecutable(root, name string, target platform.OS) (string, error) {
	for _, dir := range []string{"bin", "."} {
		for _, file := range entryNames(name, target) {
			path := filepath.Join(root, dir, file)
			if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("executable %s not installed under %s", name, root)
}

// zipDir writes every file below srcDir into a zip archive at dest.
func zipDir(srcDir, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	w := zip.NewWriter(f)
	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		writer, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(writer, file)
		return err
	})
	if err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return f.Close()
}
