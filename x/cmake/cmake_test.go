package cmake

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
)

func TestUseSetsCommandEnv(t *testing.T) {
	root := t.TempDir()
	includeDir := filepath.Join(root, "include")
	libDir := filepath.Join(root, "lib")
	pkgconfigDir := filepath.Join(libDir, "pkgconfig")
	for _, d := range []string{includeDir, pkgconfigDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	for _, key := range []string{
		"PKG_CONFIG_PATH", "CMAKE_PREFIX_PATH", "CMAKE_INCLUDE_PATH",
		"CMAKE_LIBRARY_PATH", "INCLUDE", "LIB", "CPPFLAGS", "LDFLAGS",
	} {
		t.Setenv(key, "")
	}

	c := New("", "", "")
	c.Use(root)

	for key, want := range map[string]string{
		"PKG_CONFIG_PATH":    pkgconfigDir,
		"CMAKE_PREFIX_PATH":  root,
		"CMAKE_INCLUDE_PATH": includeDir,
		"CMAKE_LIBRARY_PATH": libDir,
	} {
		if got := c.Getenv(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
		if got := os.Getenv(key); got != "" {
			t.Errorf("process %s modified: %q", key, got)
		}
	}
	if runtime.GOOS != "windows" {
		if got := c.Getenv("CPPFLAGS"); got != "-I"+includeDir {
			t.Errorf("CPPFLAGS = %q", got)
		}
	}
}

func TestUseChainsRoots(t *testing.T) {
	t.Setenv("CMAKE_PREFIX_PATH", "/opt/base")
	a, b := t.TempDir(), t.TempDir()

	c := New("", "", "")
	c.Use(a)
	c.Use(b)

	sep := string(os.PathListSeparator)
	if got, want := c.Getenv("CMAKE_PREFIX_PATH"), b+sep+a+sep+"/opt/base"; got != want {
		t.Errorf("CMAKE_PREFIX_PATH = %q, want %q", got, want)
	}
	if got := c.Getenv("CMAKE_LIBRARY_PATH"); got != os.Getenv("CMAKE_LIBRARY_PATH") {
		t.Errorf("CMAKE_LIBRARY_PATH set without a lib dir: %q", got)
	}
}

func TestDefinesArgs(t *testing.T) {
	c := New("", "", "")
	c.Define("GBFORGE_EXECUTABLE", "emu")
	c.DefineBool("ENABLE_CLANG_TIDY", false)
	c.DefineBool("ENABLE_SANITIZERS", true)
	c.DefinePath("CMAKE_PREFIX_PATH", filepath.Join("a", "b"))

	want := []string{
		"-DCMAKE_PREFIX_PATH:PATH=a/b",
		"-DENABLE_CLANG_TIDY:BOOL=OFF",
		"-DENABLE_SANITIZERS:BOOL=ON",
		"-DGBFORGE_EXECUTABLE:STRING=emu",
	}
	if got := c.definesArgs(); !slices.Equal(got, want) {
		t.Errorf("definesArgs = %v, want %v", got, want)
	}
	if args := New("", "", "").definesArgs(); args != nil {
		t.Errorf("definesArgs on empty = %v, want nil", args)
	}
}

func TestOutputDir(t *testing.T) {
	if got := New("", "build", "").OutputDir(); got != "build" {
		t.Errorf("OutputDir = %q, want %q", got, "build")
	}
	if got := New("", "build", "inst").OutputDir(); got != "inst" {
		t.Errorf("OutputDir = %q, want %q", got, "inst")
	}
}

func TestMergeEnv(t *testing.T) {
	got := mergeEnv([]string{"A=1", "B=2", "C=3"}, map[string]string{"B": "x", "D": "y"})
	want := []string{"A=1", "C=3", "B=x", "D=y"}
	if !slices.Equal(got, want) {
		t.Errorf("mergeEnv = %v, want %v", got, want)
	}
}

func TestRunCapturesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as cmake")
	}
	fake := filepath.Join(t.TempDir(), "cmake")
	script := "#!/bin/sh\necho \"$GBFORGE_TEST_MARK\" >&2\nexit 3\n"
	if err := os.WriteFile(fake, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	c := New("src", filepath.Join(t.TempDir(), "build"), "")
	c.Program = fake
	c.Setenv("GBFORGE_TEST_MARK", "undefined reference to main")
	var tee strings.Builder
	c.Stderr = &tee

	err := c.Build(context.Background())
	var cmErr *Error
	if !errors.As(err, &cmErr) {
		t.Fatalf("Build error = %v, want *Error", err)
	}
	if cmErr.Stderr != "undefined reference to main\n" {
		t.Errorf("Stderr = %q", cmErr.Stderr)
	}
	if tee.String() != cmErr.Stderr {
		t.Errorf("tee = %q, want %q", tee.String(), cmErr.Stderr)
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Errorf("exit error = %v", err)
	}
}

func TestConfigureBuildInstallE2E(t *testing.T) {
	if _, err := exec.LookPath("cmake"); err != nil {
		t.Skip("cmake not found in PATH")
	}

	tmp := t.TempDir()
	installDir := filepath.Join(tmp, "install")
	buildDir := filepath.Join(tmp, "build")

	c := New(filepath.Join("testdata", "project"), buildDir, installDir)
	c.BuildType("Release")

	toolchain := filepath.Join(tmp, "toolchain.cmake")
	if err := os.WriteFile(toolchain, []byte("# empty toolchain\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c.Toolchain(toolchain)
	c.Define("GBFORGE_EXECUTABLE", "emu")
	c.DefineBool("ENABLE_CLANG_TIDY", false)

	ctx := context.Background()
	if err := c.Configure(ctx); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := c.Build(ctx); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if _, err := os.Stat(filepath.Join(installDir, "include", "dummy.h")); err != nil {
		t.Errorf("missing installed header: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(buildDir, "CMakeCache.txt"))
	if err != nil {
		t.Fatalf("read CMakeCache.txt: %v", err)
	}
	for _, want := range []string{
		"GBFORGE_EXECUTABLE:STRING=emu",
		"ENABLE_CLANG_TIDY:BOOL=OFF",
		"CMAKE_BUILD_TYPE:STRING=Release",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("CMakeCache.txt missing %q", want)
		}
	}
}
