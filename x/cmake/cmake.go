// Package cmake wraps the cmake configure/build/install workflow.
package cmake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/qiniu/x/log"
	"golang.org/x/sys/execabs"
)

type defineValue struct {
	value    string
	typeName string
}

// CMake drives CMake-based builds. The process environment is never
// modified; Use and Setenv only affect the commands this CMake runs.
type CMake struct {
	sourceDir  string
	buildDir   string
	installDir string
	generator  string
	buildType  string
	toolchain  string
	defines    map[string]defineValue
	env        map[string]string

	// Program is the cmake executable, "cmake" when empty.
	Program string
	// Stdout and Stderr receive the tool output as it is produced. Stderr
	// is captured regardless and attached to returned errors.
	Stdout io.Writer
	Stderr io.Writer
}

// Error is returned when the cmake process fails.
type Error struct {
	Args   []string
	Err    error
	Stderr string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cmake %s: %v", strings.Join(e.Args, " "), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a ready-to-use CMake.
func New(sourceDir, buildDir, installDir string) *CMake {
	return &CMake{
		sourceDir:  sourceDir,
		buildDir:   buildDir,
		installDir: installDir,
		defines:    make(map[string]defineValue),
		env:        make(map[string]string),
	}
}

// Source overrides the source directory.
func (c *CMake) Source(dir string) { c.sourceDir = dir }

// Generator sets the CMake generator (e.g. "Ninja", "Unix Makefiles").
func (c *CMake) Generator(name string) { c.generator = name }

// BuildType sets CMAKE_BUILD_TYPE (e.g. "Release", "Debug").
func (c *CMake) BuildType(name string) { c.buildType = name }

// Toolchain sets CMAKE_TOOLCHAIN_FILE.
func (c *CMake) Toolchain(path string) { c.toolchain = path }

// Define adds a -D<key>:STRING=<value> definition.
func (c *CMake) Define(key, value string) {
	c.defines[key] = defineValue{value: value, typeName: "STRING"}
}

// DefineBool adds a -D<key>:BOOL=ON/OFF definition.
func (c *CMake) DefineBool(key string, value bool) {
	v := "OFF"
	if value {
		v = "ON"
	}
	c.defines[key] = defineValue{value: v, typeName: "BOOL"}
}

// DefinePath adds a -D<key>:PATH=<value> definition.
func (c *CMake) DefinePath(key, value string) {
	c.defines[key] = defineValue{value: filepath.ToSlash(value), typeName: "PATH"}
}

// Setenv sets an environment variable for the commands run by c.
func (c *CMake) Setenv(key, value string) { c.env[key] = value }

// Getenv returns the value c passes for key, falling back to the process
// environment.
func (c *CMake) Getenv(key string) string {
	if v, ok := c.env[key]; ok {
		return v
	}
	return os.Getenv(key)
}

// Use makes CMake and the compilers find headers, libraries, pkg-config
// and package config files installed at root.
func (c *CMake) Use(root string) {
	includeDir := filepath.Join(root, "include")
	libDir := filepath.Join(root, "lib")
	pkgconfigDir := filepath.Join(libDir, "pkgconfig")

	if isDir(pkgconfigDir) {
		c.prependPath("PKG_CONFIG_PATH", pkgconfigDir)
	}
	c.prependPath("CMAKE_PREFIX_PATH", root)
	if isDir(includeDir) {
		c.prependPath("CMAKE_INCLUDE_PATH", includeDir)
	}
	if isDir(libDir) {
		c.prependPath("CMAKE_LIBRARY_PATH", libDir)
	}

	if runtime.GOOS == "windows" {
		if isDir(includeDir) {
			c.prependPath("INCLUDE", includeDir)
		}
		if isDir(libDir) {
			c.prependPath("LIB", libDir)
		}
	} else {
		if isDir(includeDir) {
			c.appendFlag("CPPFLAGS", "-I"+includeDir)
		}
		if isDir(libDir) {
			c.appendFlag("LDFLAGS", "-L"+libDir)
		}
	}
}

// Configure runs "cmake -S <source> -B <build>" with all configured options.
// Extra args are appended at the end.
func (c *CMake) Configure(ctx context.Context, args ...string) error {
	if err := os.MkdirAll(c.buildDir, 0o755); err != nil {
		return err
	}
	cmakeArgs := []string{"-S", c.sourceDir, "-B", c.buildDir}
	if c.generator != "" {
		cmakeArgs = append(cmakeArgs, "-G", c.generator)
	}
	if c.installDir != "" {
		c.DefinePath("CMAKE_INSTALL_PREFIX", c.installDir)
	}
	if c.toolchain != "" {
		c.DefinePath("CMAKE_TOOLCHAIN_FILE", c.toolchain)
	}
	if c.buildType != "" {
		c.Define("CMAKE_BUILD_TYPE", c.buildType)
	}
	cmakeArgs = append(cmakeArgs, c.definesArgs()...)
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, cmakeArgs)
}

// Build runs "cmake --build <build>" with optional extra arguments.
func (c *CMake) Build(ctx context.Context, args ...string) error {
	cmakeArgs := []string{"--build", c.buildDir}
	if c.buildType != "" {
		cmakeArgs = append(cmakeArgs, "--config", c.buildType)
	}
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, cmakeArgs)
}

// Install runs "cmake --install <build>" with optional extra arguments.
func (c *CMake) Install(ctx context.Context, args ...string) error {
	cmakeArgs := []string{"--install", c.buildDir}
	if c.buildType != "" {
		cmakeArgs = append(cmakeArgs, "--config", c.buildType)
	}
	if c.installDir != "" {
		cmakeArgs = append(cmakeArgs, "--prefix", c.installDir)
	}
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, cmakeArgs)
}

// OutputDir returns installDir if set, otherwise buildDir.
func (c *CMake) OutputDir() string {
	if c.installDir != "" {
		return c.installDir
	}
	return c.buildDir
}

func (c *CMake) run(ctx context.Context, args []string) error {
	prog := c.Program
	if prog == "" {
		prog = "cmake"
	}
	log.Debugf("%s %s", prog, strings.Join(args, " "))

	var stderr bytes.Buffer
	cmd := execabs.CommandContext(ctx, prog, args...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = &stderr
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, c.Stderr)
	}
	if len(c.env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), c.env)
	}
	if err := cmd.Run(); err != nil {
		return &Error{Args: args, Err: err, Stderr: stderr.String()}
	}
	return nil
}

func (c *CMake) definesArgs() []string {
	if len(c.defines) == 0 {
		return nil
	}
	args := make([]string, 0, len(c.defines))
	for _, k := range slices.Sorted(maps.Keys(c.defines)) {
		d := c.defines[k]
		args = append(args, "-D"+k+":"+d.typeName+"="+d.value)
	}
	return args
}

// prependPath prepends value to a PATH-style variable.
func (c *CMake) prependPath(key, value string) {
	if cur := c.Getenv(key); cur != "" {
		value += string(os.PathListSeparator) + cur
	}
	c.env[key] = value
}

// appendFlag appends a space-separated flag to a variable.
func (c *CMake) appendFlag(key, flag string) {
	if cur := c.Getenv(key); cur != "" {
		flag = cur + " " + flag
	}
	c.env[key] = flag
}

func mergeEnv(base []string, override map[string]string) []string {
	env := make([]string, 0, len(base)+len(override))
	for _, kv := range base {
		if k, _, ok := strings.Cut(kv, "="); ok {
			if _, replaced := override[k]; replaced {
				continue
			}
		}
		env = append(env, kv)
	}
	for _, k := range slices.Sorted(maps.Keys(override)) {
		env = append(env, k+"="+override[k])
	}
	return env
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
