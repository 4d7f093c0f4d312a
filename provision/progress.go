package provision

import (
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Progress receives the running byte count of a single transfer.
// *progressbar.ProgressBar satisfies it.
type Progress interface {
	Set64(n int64) error
	Finish() error
}

// ProgressFactory creates a Progress for one file of the given declared size.
type ProgressFactory func(file string, total int64) Progress

type nopProgress struct{}

func (nopProgress) Set64(int64) error { return nil }
func (nopProgress) Finish() error     { return nil }

// NopProgress discards progress.
func NopProgress(string, int64) Progress { return nopProgress{} }

// BarProgress renders a byte progress bar per file on w.
func BarProgress(w io.Writer) ProgressFactory {
	return func(file string, total int64) Progress {
		return progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(file),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(w, "\n") }),
		)
	}
}

// LogProgress logs every tenth of a transfer. Used when stderr is not a terminal.
func LogProgress(logger *slog.Logger) ProgressFactory {
	return func(file string, total int64) Progress {
		return &logProgress{logger: logger, file: file, total: total}
	}
}

type logProgress struct {
	logger *slog.Logger
	file   string
	total  int64
	step   int64
}

func (p *logProgress) Set64(n int64) error {
	if p.total <= 0 {
		return nil
	}
	step := n * 10 / p.total
	if step > p.step && step < 10 {
		p.step = step
		p.logger.Info("downloading", "file", p.file, "bytes", n, "total", p.total, "percent", step*10)
	}
	return nil
}

func (p *logProgress) Finish() error { return nil }
