package accel

import (
	"fmt"
	"io"
	"sync"
)

// ReportSink receives the summary of a finished run, successful or not.
type ReportSink interface {
	Emit(outcome DownloadOutcome)
}

// LineReporter writes "<url> <threads> <contentLength> <elapsedSeconds>".
type LineReporter struct {
	mu sync.Mutex
	W  io.Writer
}

func NewLineReporter(w io.Writer) *LineReporter {
	return &LineReporter{W: w}
}

func (r *LineReporter) Emit(outcome DownloadOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.W, "%s %d %d %f\n", outcome.URL, outcome.Threads, outcome.TotalBytes, outcome.ElapsedSeconds())
}
