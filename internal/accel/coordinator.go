package accel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tanq16/accel/internal/utils"
)

type Options struct {
	HTTPClientConfig utils.HTTPClientConfig
	Client           utils.HTTPDoer // overrides HTTPClientConfig when set
	TempDir          string         // defaults to .accel-temp next to the output
	RateLimit        int64          // bytes per second per segment
	Debug            bool
	Reporter         ReportSink
}

// Coordinator runs the probe, fan-out, join and reassembly of one download.
type Coordinator struct {
	opts     Options
	reporter ReportSink
	log      zerolog.Logger
}

func NewCoordinator(opts Options) *Coordinator {
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = NewLineReporter(os.Stdout)
	}
	return &Coordinator{
		opts:     opts,
		reporter: reporter,
		log:      utils.GetLogger("accel").Level(level),
	}
}

// Run performs the download described by req. The outcome is emitted to the
// reporter exactly once on every return path. Elapsed covers only the
// transfer and reassembly phase. On failure no file is left at OutputPath.
func (c *Coordinator) Run(ctx context.Context, req DownloadRequest) (outcome DownloadOutcome) {
	outcome = DownloadOutcome{URL: req.URL, Threads: req.Threads}
	defer func() {
		c.reporter.Emit(outcome)
	}()

	log := c.log.With().Str("url", req.URL).Logger()
	ctx = log.WithContext(ctx)

	if err := req.Validate(); err != nil {
		outcome.Err = err
		return outcome
	}
	log.Debug().Int("threads", req.Threads).Str("output", req.OutputPath).Msg("Download configured")

	if err := removeStaleOutput(req.OutputPath); err != nil {
		outcome.Err = err
		return outcome
	}

	client := c.opts.Client
	if client == nil {
		cfg := c.opts.HTTPClientConfig
		cfg.HighThreadMode = req.Threads > 5
		client = utils.NewAccelHTTPClient(cfg)
	}

	meta, err := ProbeMetadata(ctx, client, req.URL)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.TotalBytes = meta.TotalBytes

	ranges, err := PlanRanges(meta.TotalBytes, req.Threads)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	if len(ranges) > 0 {
		log.Debug().Int64("perThread", ranges[0].Length()).Int("segments", len(ranges)).Msg("Ranges planned")
	}

	tempDir := utils.TempDirFor(req.OutputPath, c.opts.TempDir)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		outcome.Err = &IOError{Op: "mkdir", Path: tempDir, Err: err}
		return outcome
	}
	defer utils.RemoveIfEmpty(tempDir)

	fetcher := &SegmentFetcher{
		Client:     client,
		TempDir:    tempDir,
		FilePrefix: filepath.Base(req.OutputPath) + "." + uuid.NewString()[:8],
		RateLimit:  c.opts.RateLimit,
	}

	startTime := time.Now()
	defer func() {
		outcome.Elapsed = time.Since(startTime)
	}()

	segments, err := c.transfer(ctx, fetcher, req.URL, ranges)
	if err != nil {
		log.Debug().Err(err).Msg("Transfer failed")
		outcome.Err = err
		return outcome
	}
	written, err := Reassemble(ctx, req.OutputPath, segments)
	outcome.BytesWritten = written
	if err != nil {
		log.Debug().Err(err).Msg("Reassembly failed")
		outcome.Err = err
		return outcome
	}
	log.Debug().Str("output", req.OutputPath).Str("size", utils.FormatBytes(written)).Msg("Download complete")
	return outcome
}

// transfer fetches every range concurrently. The first failure cancels the
// remaining workers and every segment already on disk is discarded.
func (c *Coordinator) transfer(ctx context.Context, fetcher *SegmentFetcher, rawURL string, ranges []RangeSpec) ([]SegmentResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]SegmentResult, len(ranges))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for i, spec := range ranges {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := fetcher.Fetch(ctx, rawURL, spec)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
				return
			}
			results[i] = res
		}()
	}
	wg.Wait()

	if firstErr != nil {
		discardSegments(results)
		return nil, firstErr
	}
	return results, nil
}

// removeStaleOutput deletes a previous regular file at outputPath. Anything
// else at that path is left alone and reported.
func removeStaleOutput(outputPath string) error {
	info, err := os.Lstat(outputPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &IOError{Op: "stat", Path: outputPath, Err: err}
	}
	if !info.Mode().IsRegular() {
		return &IOError{Op: "remove", Path: outputPath, Err: fmt.Errorf("%w: not a regular file (%s)", ErrInvalidConfiguration, info.Mode().Type())}
	}
	if err := os.Remove(outputPath); err != nil {
		return &IOError{Op: "remove", Path: outputPath, Err: err}
	}
	return nil
}
