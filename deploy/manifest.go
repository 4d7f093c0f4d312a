package deploy

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// Function holds the platform knobs of the serving function.
type Function struct {
	GPU              string `toml:"gpu"`
	ConcurrencyLimit int    `toml:"concurrency_limit"`
	KeepWarm         int    `toml:"keep_warm"`
	MountPath        string `toml:"mount_path"`
}

// DefaultFunction is one H100, one request at a time, one warm instance.
func DefaultFunction() Function {
	return Function{
		GPU:              "H100",
		ConcurrencyLimit: 1,
		KeepWarm:         1,
		MountPath:        "/",
	}
}

// Validate checks the knobs the platform rejects.
func (f Function) Validate() error {
	if f.GPU == "" {
		return fmt.Errorf("function.gpu is required")
	}
	if f.ConcurrencyLimit < 1 {
		return fmt.Errorf("function.concurrency_limit must be at least 1, got %d", f.ConcurrencyLimit)
	}
	if f.KeepWarm < 0 {
		return fmt.Errorf("function.keep_warm must be non-negative, got %d", f.KeepWarm)
	}
	return nil
}

// Manifest is the full deployment description of one demo.
type Manifest struct {
	App      string   `toml:"app"`
	Demo     string   `toml:"demo"`
	Image    Image    `toml:"image"`
	Function Function `toml:"function"`
}

// ToTOML renders the manifest.
func (m Manifest) ToTOML() (string, error) {
	if err := m.Function.Validate(); err != nil {
		return "", err
	}
	data, err := toml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	return string(data), nil
}

// ParseManifest reads a manifest produced by ToTOML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
