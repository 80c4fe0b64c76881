package accel

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DownloadRequest describes one download. It is not modified once built.
type DownloadRequest struct {
	URL        string
	Threads    int
	OutputPath string
}

// Validate checks the request before any network traffic happens.
func (r DownloadRequest) Validate() error {
	if r.Threads < 1 {
		return fmt.Errorf("%w: thread count must be at least 1, got %d", ErrInvalidConfiguration, r.Threads)
	}
	if r.OutputPath == "" {
		return fmt.Errorf("%w: output path is empty", ErrInvalidConfiguration)
	}
	parsedURL, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %v", ErrInvalidConfiguration, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidConfiguration, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%w: URL has no host", ErrInvalidConfiguration)
	}
	return nil
}

type ContentMetadata struct {
	TotalBytes   int64
	AcceptRanges bool
	Header       http.Header
}

// RangeSpec is an inclusive byte span. Index defines output order.
type RangeSpec struct {
	Index int
	Start int64
	End   int64
}

func (r RangeSpec) Length() int64 {
	return r.End - r.Start + 1
}

func (r RangeSpec) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// SegmentResult points at the on-disk store a fetcher filled for one range.
type SegmentResult struct {
	Spec RangeSpec
	Path string
	Size int64
}

// DownloadOutcome is produced once per run. On failure BytesWritten and
// Elapsed hold whatever was reached before the error.
type DownloadOutcome struct {
	URL          string
	Threads      int
	TotalBytes   int64
	BytesWritten int64
	Elapsed      time.Duration
	Err          error
}

func (o DownloadOutcome) ElapsedSeconds() float64 {
	return o.Elapsed.Seconds()
}
