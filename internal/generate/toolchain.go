package generate

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gbforge/gbforge/internal/platform"
	"github.com/gbforge/gbforge/mod/dep"
)

type compiler struct {
	cc, cxx string
	oses    []platform.OS
}

var compilers = map[string]compiler{
	"gcc":         {cc: "gcc", cxx: "g++", oses: []platform.OS{platform.Linux, platform.Windows}},
	"clang":       {cc: "clang", cxx: "clang++", oses: []platform.OS{platform.Linux, platform.Windows, platform.MacOS}},
	"apple-clang": {cc: "clang", cxx: "clang++", oses: []platform.OS{platform.MacOS}},
	"msvc":        {cc: "cl", cxx: "cl", oses: []platform.OS{platform.Windows}},
	"emcc":        {cc: "emcc", cxx: "em++", oses: []platform.OS{platform.Web}},
}

var systemNames = map[platform.OS]string{
	platform.Linux:   "Linux",
	platform.Windows: "Windows",
	platform.MacOS:   "Darwin",
	platform.Web:     "Emscripten",
}

var processors = map[string]string{
	"x86_64":  "x86_64",
	"x86":     "i686",
	"armv7":   "armv7",
	"armv7hf": "armv7",
	"armv8":   "aarch64",
	"wasm":    "wasm32",
}

// toolchain is the configuration-independent part of the build inputs.
type toolchain struct {
	platform  platform.Descriptor
	compiler  compiler
	system    string
	processor string
	triple    string
	cflags    []string
	cxxflags  []string
}

func newToolchain(p platform.Descriptor) (*toolchain, error) {
	c, ok := compilers[p.Compiler]
	if !ok {
		return nil, fmt.Errorf("unknown compiler %q", p.Compiler)
	}
	if !slices.Contains(c.oses, p.OS) {
		return nil, fmt.Errorf("compiler %s cannot target %s", p.Compiler, p.OS)
	}
	proc, ok := processors[p.Arch]
	if !ok {
		return nil, fmt.Errorf("unknown arch %q", p.Arch)
	}
	tc := &toolchain{
		platform:  p,
		compiler:  c,
		system:    systemNames[p.OS],
		processor: proc,
		triple:    targetTriple(p, proc),
	}

	switch p.Compiler {
	case "msvc":
		tc.cxxflags = append(tc.cxxflags, "/EHsc", "/utf-8")
		tc.cflags = append(tc.cflags, "/utf-8")
	case "emcc":
		tc.cflags = append(tc.cflags, "-pthread")
		tc.cxxflags = append(tc.cxxflags, "-pthread")
	default:
		switch p.Arch {
		case "x86":
			tc.cflags = append(tc.cflags, "-m32")
		case "armv7hf":
			tc.cflags = append(tc.cflags, "-mfloat-abi=hard")
		}
		tc.cxxflags = append(tc.cxxflags, tc.cflags...)
	}
	return tc, nil
}

func targetTriple(p platform.Descriptor, proc string) string {
	switch p.OS {
	case platform.Linux:
		switch p.Arch {
		case "armv7":
			return "arm-linux-gnueabi"
		case "armv7hf":
			return "arm-linux-gnueabihf"
		}
		return proc + "-linux-gnu"
	case platform.Windows:
		if p.Compiler == "msvc" {
			return proc + "-pc-windows-msvc"
		}
		return proc + "-w64-mingw32"
	case platform.MacOS:
		if proc == "aarch64" {
			proc = "arm64"
		}
		return proc + "-apple-darwin"
	}
	return "wasm32-unknown-emscripten"
}

// render returns the toolchain file. Plan options become cache variables
// named GBFORGE_<DEP>_<KEY>.
func (tc *toolchain) render(deps []dep.Descriptor) string {
	var b strings.Builder
	b.WriteString(header)
	fmt.Fprintf(&b, "set(CMAKE_SYSTEM_NAME %s)\n", tc.system)
	fmt.Fprintf(&b, "set(CMAKE_SYSTEM_PROCESSOR %s)\n", tc.processor)
	fmt.Fprintf(&b, "set(CMAKE_C_COMPILER %s)\n", tc.compiler.cc)
	fmt.Fprintf(&b, "set(CMAKE_CXX_COMPILER %s)\n", tc.compiler.cxx)
	if strings.Contains(tc.platform.Compiler, "clang") {
		fmt.Fprintf(&b, "set(CMAKE_C_COMPILER_TARGET %s)\n", tc.triple)
		fmt.Fprintf(&b, "set(CMAKE_CXX_COMPILER_TARGET %s)\n", tc.triple)
	}
	fmt.Fprintf(&b, "set(CMAKE_C_FLAGS_INIT %s)\n", quote(strings.Join(tc.cflags, " ")))
	fmt.Fprintf(&b, "set(CMAKE_CXX_FLAGS_INIT %s)\n", quote(strings.Join(tc.cxxflags, " ")))
	if tc.platform.OS == platform.Web {
		b.WriteString("set(CMAKE_EXECUTABLE_SUFFIX \".html\")\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "set(GBFORGE_PLATFORM %s)\n", quote(tc.platform.Key()))
	fmt.Fprintf(&b, "set(GBFORGE_TARGET_TRIPLE %s)\n", quote(tc.triple))
	b.WriteString("set(CMAKE_FIND_PACKAGE_PREFER_CONFIG ON)\n")
	b.WriteString("list(PREPEND CMAKE_PREFIX_PATH \"${CMAKE_CURRENT_LIST_DIR}\")\n")

	for _, d := range deps {
		if len(d.Options) == 0 {
			continue
		}
		b.WriteString("\n")
		for _, key := range slices.Sorted(maps.Keys(d.Options)) {
			fmt.Fprintf(&b, "set(%s %s CACHE STRING \"\")\n", optionVar(d.Name, key), quote(d.Options[key]))
		}
	}
	return b.String()
}

func optionVar(name, key string) string {
	return "GBFORGE_" + cmakeIdent(name) + "_" + cmakeIdent(key)
}

func cmakeIdent(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, s)
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`)
	return `"` + r.Replace(s) + `"`
}
