package provision

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// RecordFile is the name of the provisioning record under the build root.
const RecordFile = ".provisioned.json"

// Layout holds the fixed destination directories of a build root.
type Layout struct {
	Root         string
	ModelsDir    string
	DetectorsDir string
}

// DefaultLayout returns the ControlNet repository layout under root:
// weights go to models/, annotators to annotator/ckpts/.
func DefaultLayout(root string) Layout {
	return Layout{
		Root:         root,
		ModelsDir:    filepath.Join(root, "models"),
		DetectorsDir: filepath.Join(root, "annotator", "ckpts"),
	}
}

// EnsureDirs creates the destination directories if they do not exist.
func (l Layout) EnsureDirs() error {
	for _, d := range []string{l.ModelsDir, l.DetectorsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// RecordPath returns where the provisioning record lives.
func (l Layout) RecordPath() string { return filepath.Join(l.Root, RecordFile) }

// SaveRecord writes r as JSON.
func (l Layout) SaveRecord(r *Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.RecordPath(), data, 0o644)
}

// RemoveRecord deletes the provisioning record. A missing record is not an error.
func (l Layout) RemoveRecord() error {
	if err := os.Remove(l.RecordPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// LoadRecord reads the provisioning record. It returns os.ErrNotExist (wrapped)
// when the root has never been provisioned.
func (l Layout) LoadRecord() (*Record, error) {
	data, err := os.ReadFile(l.RecordPath())
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", l.RecordPath(), err)
	}
	return &r, nil
}

// VerifyRecord checks that root was provisioned for demo.
func (l Layout) VerifyRecord(demo string) error {
	r, err := l.LoadRecord()
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s has not been provisioned (no %s)", l.Root, RecordFile)
	}
	if err != nil {
		return err
	}
	if r.Demo != demo {
		return fmt.Errorf("%s was provisioned for demo %q, not %q", l.Root, r.Demo, demo)
	}
	return nil
}

// ArtifactStatus reports whether a planned artifact is present on disk.
type ArtifactStatus struct {
	Artifact
	Present bool
	Size    int64
}

// Inspect stats every planned artifact. It never downloads anything.
func Inspect(plan []Artifact) []ArtifactStatus {
	out := make([]ArtifactStatus, 0, len(plan))
	for _, a := range plan {
		st := ArtifactStatus{Artifact: a}
		if info, err := os.Stat(a.Path); err == nil && info.Mode().IsRegular() {
			st.Present = true
			st.Size = info.Size()
		}
		out = append(out, st)
	}
	return out
}
