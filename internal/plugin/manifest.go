package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultManifestFilename is the default filename for plugin manifests.
const DefaultManifestFilename = "plugin.json"

// Manifest describes a plugin binary.
type Manifest struct {
	// ID is the unique identifier (e.g., "acme.depthwatch").
	ID string `json:"id"`

	// Name is a human-readable name.
	Name string `json:"name"`

	// Version is the plugin version.
	Version string `json:"version"`

	// BinaryPath is the path to the plugin binary (relative to manifest).
	BinaryPath string `json:"binary_path"`

	// Description describes what the application does.
	Description string `json:"description,omitempty"`

	// Checksum is the SHA256 checksum of the binary.
	Checksum string `json:"checksum,omitempty"`

	// Env is added to the plugin process environment.
	Env map[string]string `json:"env,omitempty"`

	dir string
}

// LoadManifest loads a manifest from a file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	manifest.dir = filepath.Dir(path)

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return &manifest, nil
}

// Validate validates the manifest fields.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if m.BinaryPath == "" {
		return fmt.Errorf("binary_path is required")
	}
	return nil
}

// BinaryAbsPath returns the absolute path to the plugin binary.
func (m *Manifest) BinaryAbsPath() string {
	if filepath.IsAbs(m.BinaryPath) {
		return m.BinaryPath
	}
	if abs, err := filepath.Abs(filepath.Join(m.dir, m.BinaryPath)); err == nil {
		return abs
	}
	return filepath.Join(m.dir, m.BinaryPath)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}

// SaveManifest saves a manifest to a file.
func SaveManifest(path string, manifest *Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

// ResolveManifestPath accepts either a manifest file or a directory
// containing DefaultManifestFilename.
func ResolveManifestPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("manifest not found: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}
	candidate := filepath.Join(path, DefaultManifestFilename)
	if _, err := os.Stat(candidate); err != nil {
		return "", fmt.Errorf("manifest not found in %s: %w", path, err)
	}
	return candidate, nil
}
