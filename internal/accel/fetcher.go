package accel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/juju/ratelimit"
	"github.com/tanq16/accel/internal/utils"
)

// SegmentFetcher downloads single ranges into files under TempDir. A fetcher
// holds no mutable state, so one value serves every worker of a run.
type SegmentFetcher struct {
	Client     utils.HTTPDoer
	TempDir    string
	FilePrefix string // "<output base>.<run id>"
	RateLimit  int64  // bytes per second per segment, 0 disables
	BufferSize int
}

func (f *SegmentFetcher) segmentPath(index int) string {
	return filepath.Join(f.TempDir, fmt.Sprintf("%s.part%d", f.FilePrefix, index))
}

// Fetch performs one ranged GET and streams the body to the segment's file.
// The observed size must equal the requested range length.
func (f *SegmentFetcher) Fetch(ctx context.Context, rawURL string, spec RangeSpec) (SegmentResult, error) {
	log := utils.LoggerFrom(ctx, "fetcher")
	segPath := f.segmentPath(spec.Index)
	log.Debug().Str("op", "fetch").Int("segment", spec.Index).Str("range", spec.Header()).Str("file", segPath).Msg("Starting segment")

	size, err := f.fetchInto(ctx, rawURL, spec, segPath)
	if err != nil {
		os.Remove(segPath)
		log.Debug().Str("op", "fetch").Int("segment", spec.Index).Err(err).Msg("Segment failed")
		return SegmentResult{}, &TransferError{Index: spec.Index, Err: err}
	}
	log.Debug().Str("op", "fetch").Int("segment", spec.Index).Str("size", utils.FormatBytes(size)).Msg("Segment complete")
	return SegmentResult{Spec: spec, Path: segPath, Size: size}, nil
}

func (f *SegmentFetcher) fetchInto(ctx context.Context, rawURL string, spec RangeSpec, segPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating GET request: %w", err)
	}
	req.Header.Set("Range", spec.Header())
	req.Header.Set("Connection", "keep-alive")
	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error executing GET request: %w", err)
	}
	defer resp.Body.Close()

	expected := spec.Length()
	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// full body is only usable when the range is the whole resource
		if spec.Start != 0 || (resp.ContentLength >= 0 && resp.ContentLength != expected) {
			return 0, fmt.Errorf("%w: server ignored range request (status 200, length %d)", ErrSizeMismatch, resp.ContentLength)
		}
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	segFile, err := os.OpenFile(segPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("error opening segment file: %w", err)
	}
	defer segFile.Close()

	var body io.Reader = resp.Body
	if f.RateLimit > 0 {
		body = ratelimit.Reader(body, ratelimit.NewBucketWithRate(float64(f.RateLimit), f.RateLimit))
	}
	bufSize := f.BufferSize
	if bufSize <= 0 {
		bufSize = utils.DefaultBufferSize
	}
	// read one byte past the range so an oversized body is detected
	written, err := io.CopyBuffer(segFile, io.LimitReader(body, expected+1), make([]byte, bufSize))
	if err != nil {
		return written, fmt.Errorf("error reading response body: %w", err)
	}
	if written != expected {
		return written, fmt.Errorf("%w: expected %d bytes, got %d", ErrSizeMismatch, expected, written)
	}
	if err := segFile.Sync(); err != nil {
		return written, fmt.Errorf("error syncing segment file: %w", err)
	}
	return written, nil
}
