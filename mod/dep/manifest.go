package dep

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Manifest is the descriptor set handed to the external package tool.
type Manifest struct {
	Revision string       `json:"revision"` // rule table revision that produced it
	Platform string       `json:"platform"` // platform matrix key
	Requires []Descriptor `json:"requires"`
}

// ParseManifest parses a manifest and checks every entry names a
// dependency with a usable version.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for _, d := range m.Requires {
		if d.Name == "" {
			return nil, fmt.Errorf("manifest entry without a name")
		}
		if err := CheckVersion(d.Version); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
	}
	return &m, nil
}

// Write stores m at path, creating parent directories as needed.
func (m *Manifest) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
