package provision

import "time"

// Kind distinguishes ControlNet weights from annotator weights.
type Kind string

const (
	KindModel    Kind = "model"
	KindDetector Kind = "detector"
)

// FileRecord describes one artifact written during provisioning.
type FileRecord struct {
	Kind Kind   `json:"kind"`
	URL  string `json:"url"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Record is persisted after a fully successful provisioning run.
type Record struct {
	Demo        string       `json:"demo"`
	Files       []FileRecord `json:"files"`
	CompletedAt time.Time    `json:"completed_at"`
}

// TotalSize returns the sum of all file sizes.
func (r *Record) TotalSize() int64 {
	var n int64
	for _, f := range r.Files {
		n += f.Size
	}
	return n
}
