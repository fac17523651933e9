package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Build directory layout:
//
//	buildRoot/
//	  <arch>-<compiler>-<os>-<config>/   # one per matrix combination
//	    .cache.json                      # stamp of the last successful build
//	    ...                              # native build tree
const cacheFile = ".cache.json"

// stamp records a successful build of one configuration. Package refuses
// configurations without a matching stamp.
type stamp struct {
	Platform  string    `json:"platform"`
	Config    string    `json:"config"`
	Toolchain string    `json:"toolchain"`
	BuildTime time.Time `json:"build_time"`
}

func (s *stamp) matches(platformKey, config string) error {
	if s.Platform != platformKey || s.Config != config {
		return fmt.Errorf("build stamp is for %s %s", s.Platform, s.Config)
	}
	return nil
}

func loadStamp(buildDir string) (*stamp, error) {
	data, err := os.ReadFile(filepath.Join(buildDir, cacheFile))
	if err != nil {
		return nil, err
	}
	var s stamp
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func saveStamp(buildDir string, s *stamp) error {
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(buildDir, cacheFile), data, 0o644)
}

func removeStamp(buildDir string) error {
	err := os.Remove(filepath.Join(buildDir, cacheFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
