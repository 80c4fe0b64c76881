package accel

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/accel/internal/testutil"
	"github.com/tanq16/accel/internal/utils"
)

type recordingSink struct {
	mu       sync.Mutex
	outcomes []DownloadOutcome
}

func (r *recordingSink) Emit(outcome DownloadOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingSink) single(t *testing.T) DownloadOutcome {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.outcomes, 1, "exactly one report per run")
	return r.outcomes[0]
}

func newTestCoordinator(sink ReportSink) *Coordinator {
	return NewCoordinator(Options{
		HTTPClientConfig: utils.HTTPClientConfig{Timeout: 30 * time.Second},
		Reporter:         sink,
	})
}

func TestRun_Success(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithFileSize(1000*1000+7))
	sink := &recordingSink{}
	out := filepath.Join(t.TempDir(), "testfile.bin")

	outcome := newTestCoordinator(sink).Run(context.Background(), DownloadRequest{URL: m.URL(), Threads: 6, OutputPath: out})
	require.NoError(t, outcome.Err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, m.Data(), got)

	reported := sink.single(t)
	assert.Equal(t, m.URL(), reported.URL)
	assert.Equal(t, 6, reported.Threads)
	assert.Equal(t, int64(1000*1000+7), reported.TotalBytes)
	assert.Equal(t, int64(1000*1000+7), reported.BytesWritten)
	assert.Positive(t, reported.Elapsed)
	assert.Equal(t, int64(6), m.RangeRequests.Load())
	assert.NoDirExists(t, filepath.Join(filepath.Dir(out), utils.TempDirName))
}

func TestRun_SingleThread(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithFileSize(4096))
	sink := &recordingSink{}
	out := filepath.Join(t.TempDir(), "one.bin")

	outcome := newTestCoordinator(sink).Run(context.Background(), DownloadRequest{URL: m.URL(), Threads: 1, OutputPath: out})
	require.NoError(t, outcome.Err)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, m.Data(), got)
	assert.Equal(t, int64(1), m.RangeRequests.Load())
}

func TestRun_ReplacesStaleOutput(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithFileSize(2048))
	out := filepath.Join(t.TempDir(), "stale.bin")
	require.NoError(t, os.WriteFile(out, bytes.Repeat([]byte("old"), 5000), 0644))

	outcome := newTestCoordinator(&recordingSink{}).Run(context.Background(), DownloadRequest{URL: m.URL(), Threads: 3, OutputPath: out})
	require.NoError(t, outcome.Err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, m.Data(), got)
}

func TestRun_SegmentFailureLeavesNoOutput(t *testing.T) {
	// 4 threads over 4000 bytes: segment 2 starts at 2000
	m := testutil.NewMockServerT(t, testutil.WithFileSize(4000), testutil.WithFailingRange(2000))
	sink := &recordingSink{}
	out := filepath.Join(t.TempDir(), "broken.bin")
	require.NoError(t, os.WriteFile(out, []byte("previous run"), 0644))

	outcome := newTestCoordinator(sink).Run(context.Background(), DownloadRequest{URL: m.URL(), Threads: 4, OutputPath: out})

	var transferErr *TransferError
	require.ErrorAs(t, outcome.Err, &transferErr)
	assert.Equal(t, 2, transferErr.Index)
	assert.NoFileExists(t, out)
	assert.NoDirExists(t, filepath.Join(filepath.Dir(out), utils.TempDirName))

	reported := sink.single(t)
	assert.Equal(t, int64(4000), reported.TotalBytes)
	assert.Zero(t, reported.BytesWritten)
	assert.Error(t, reported.Err)
}

func TestRun_FailureCancelsSiblings(t *testing.T) {
	latency := 5 * time.Second
	m := testutil.NewMockServerT(t,
		testutil.WithFileSize(4000),
		testutil.WithFailingRange(0),
		testutil.WithLatency(latency),
	)
	out := filepath.Join(t.TempDir(), "slow.bin")

	start := time.Now()
	outcome := newTestCoordinator(&recordingSink{}).Run(context.Background(), DownloadRequest{URL: m.URL(), Threads: 4, OutputPath: out})
	require.Error(t, outcome.Err)
	assert.Less(t, time.Since(start), latency, "workers still in flight should be cancelled")
	assert.NoFileExists(t, out)
	// every range that reached the server, except the failing one, saw its client go away
	assert.Eventually(t, func() bool {
		return m.Cancelled.Load() == m.RangeRequests.Load()-1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRun_CustomRangeHeaderIgnored(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithFileSize(4000))
	out := filepath.Join(t.TempDir(), "headers.bin")
	c := NewCoordinator(Options{
		HTTPClientConfig: utils.HTTPClientConfig{
			Timeout: 30 * time.Second,
			Headers: utils.ParseHeaderArgs([]string{"range: bytes=0-999", "X-Token: abc"}),
		},
		Reporter: &recordingSink{},
	})

	outcome := c.Run(context.Background(), DownloadRequest{URL: m.URL(), Threads: 4, OutputPath: out})
	require.NoError(t, outcome.Err)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, m.Data(), got)
}

func TestRun_OutputPathIsDirectory(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithoutContentLength())
	sink := &recordingSink{}
	out := filepath.Join(t.TempDir(), "existing-dir")
	require.NoError(t, os.Mkdir(out, 0755))

	outcome := newTestCoordinator(sink).Run(context.Background(), DownloadRequest{URL: m.URL(), Threads: 2, OutputPath: out})

	var ioErr *IOError
	require.ErrorAs(t, outcome.Err, &ioErr)
	assert.Equal(t, "remove", ioErr.Op)
	assert.DirExists(t, out)
	assert.Zero(t, m.RequestCount.Load())
	sink.single(t)
}

func TestRun_SizeMismatch(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithFileSize(3000), testutil.WithTruncatedRange(1000))
	out := filepath.Join(t.TempDir(), "short.bin")

	outcome := newTestCoordinator(&recordingSink{}).Run(context.Background(), DownloadRequest{URL: m.URL(), Threads: 3, OutputPath: out})
	assert.ErrorIs(t, outcome.Err, ErrSizeMismatch)
	assert.NoFileExists(t, out)
}

func TestRun_MetadataFailureStillReports(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithoutContentLength())
	sink := &recordingSink{}
	out := filepath.Join(t.TempDir(), "nolen.bin")

	outcome := newTestCoordinator(sink).Run(context.Background(), DownloadRequest{URL: m.URL(), Threads: 2, OutputPath: out})

	var metaErr *MetadataError
	require.ErrorAs(t, outcome.Err, &metaErr)
	reported := sink.single(t)
	assert.Zero(t, reported.TotalBytes)
	assert.Zero(t, reported.Elapsed)
	assert.Zero(t, m.RangeRequests.Load())
	assert.NoFileExists(t, out)
}

func TestRun_InvalidConfigurationStillReports(t *testing.T) {
	m := testutil.NewMockServerT(t)
	sink := &recordingSink{}

	outcome := newTestCoordinator(sink).Run(context.Background(), DownloadRequest{URL: m.URL(), Threads: 0, OutputPath: filepath.Join(t.TempDir(), "x.bin")})
	assert.ErrorIs(t, outcome.Err, ErrInvalidConfiguration)
	sink.single(t)
	assert.Zero(t, m.RequestCount.Load())
}

func TestRun_EmptyResource(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithFileSize(0))
	out := filepath.Join(t.TempDir(), "empty.bin")

	outcome := newTestCoordinator(&recordingSink{}).Run(context.Background(), DownloadRequest{URL: m.URL(), Threads: 4, OutputPath: out})
	require.NoError(t, outcome.Err)
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
	assert.Zero(t, m.RangeRequests.Load())
}

func TestRun_FewerBytesThanThreads(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithFileSize(3))
	out := filepath.Join(t.TempDir(), "tiny.bin")

	outcome := newTestCoordinator(&recordingSink{}).Run(context.Background(), DownloadRequest{URL: m.URL(), Threads: 8, OutputPath: out})
	require.NoError(t, outcome.Err)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, m.Data(), got)
	assert.Equal(t, int64(3), m.RangeRequests.Load())
}

func TestRun_CustomTempDir(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithFileSize(10000))
	tempDir := filepath.Join(t.TempDir(), "segments")
	out := filepath.Join(t.TempDir(), "custom.bin")

	c := NewCoordinator(Options{Client: testClient(), TempDir: tempDir, Reporter: &recordingSink{}})
	outcome := c.Run(context.Background(), DownloadRequest{URL: m.URL(), Threads: 2, OutputPath: out})
	require.NoError(t, outcome.Err)
	assert.NoDirExists(t, tempDir)
	assert.FileExists(t, out)
}

func TestRun_LineReporter(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithFileSize(1000))
	var buf bytes.Buffer
	c := NewCoordinator(Options{Client: testClient(), Reporter: NewLineReporter(&buf)})

	c.Run(context.Background(), DownloadRequest{URL: m.URL(), Threads: 3, OutputPath: filepath.Join(t.TempDir(), "r.bin")})

	fields := strings.Fields(buf.String())
	require.Len(t, fields, 4)
	assert.Equal(t, m.URL(), fields[0])
	assert.Equal(t, "3", fields[1])
	assert.Equal(t, "1000", fields[2])
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}
