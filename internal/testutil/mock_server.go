// Package testutil provides an httptest origin server for download tests.
package testutil

import (
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// MockServer serves a generated file with optional range support and
// failure injection.
type MockServer struct {
	Server *httptest.Server

	FileSize          int64
	SupportsRanges    bool
	OmitLength        bool          // HEAD responses carry no Content-Length
	HeadStatus        int           // status for HEAD, 0 means 200
	FailRangeStart    int64         // ranged GETs starting here get a 500, -1 disables
	TruncateRangeFrom int64         // ranged GETs starting here return one byte short, -1 disables
	Latency           time.Duration // delay before each GET body

	RequestCount  atomic.Int64
	HeadRequests  atomic.Int64
	RangeRequests atomic.Int64
	FullRequests  atomic.Int64
	Cancelled     atomic.Int64

	data []byte
}

type MockServerOption func(*MockServer)

func WithFileSize(size int64) MockServerOption {
	return func(m *MockServer) { m.FileSize = size }
}

func WithRangeSupport(enabled bool) MockServerOption {
	return func(m *MockServer) { m.SupportsRanges = enabled }
}

func WithoutContentLength() MockServerOption {
	return func(m *MockServer) { m.OmitLength = true }
}

func WithHeadStatus(status int) MockServerOption {
	return func(m *MockServer) { m.HeadStatus = status }
}

// WithFailingRange makes the ranged GET that starts at offset fail.
func WithFailingRange(offset int64) MockServerOption {
	return func(m *MockServer) { m.FailRangeStart = offset }
}

// WithTruncatedRange makes the ranged GET that starts at offset return one byte short.
func WithTruncatedRange(offset int64) MockServerOption {
	return func(m *MockServer) { m.TruncateRangeFrom = offset }
}

func WithLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) { m.Latency = d }
}

// NewMockServerT starts a server bound to IPv4 loopback and closes it when
// the test ends. The test is skipped if no listener can be created.
func NewMockServerT(t *testing.T, opts ...MockServerOption) *MockServer {
	t.Helper()
	m := &MockServer{
		FileSize:          1024 * 1024,
		SupportsRanges:    true,
		FailRangeStart:    -1,
		TruncateRangeFrom: -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.data = make([]byte, m.FileSize)
	rng := rand.New(rand.NewPCG(uint64(m.FileSize), 42))
	for i := range m.data {
		m.data[i] = byte(rng.UintN(256))
	}

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("tcp4 listener unavailable: %v", err)
		return nil
	}
	m.Server = &httptest.Server{
		Listener: ln,
		Config:   &http.Server{Handler: http.HandlerFunc(m.handleRequest)},
	}
	m.Server.Start()
	t.Cleanup(m.Server.Close)
	return m
}

func (m *MockServer) URL() string {
	return m.Server.URL + "/files/testfile.bin"
}

// Data returns the bytes the server serves.
func (m *MockServer) Data() []byte {
	return m.data
}

func (m *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	m.RequestCount.Add(1)

	if r.Method == http.MethodHead {
		m.HeadRequests.Add(1)
		if !m.OmitLength {
			w.Header().Set("Content-Length", strconv.FormatInt(m.FileSize, 10))
		}
		if m.SupportsRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		status := m.HeadStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		return
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" || !m.SupportsRanges {
		m.FullRequests.Add(1)
		if !m.wait(r) {
			return
		}
		w.Header().Set("Content-Length", strconv.FormatInt(m.FileSize, 10))
		w.WriteHeader(http.StatusOK)
		w.Write(m.data)
		return
	}

	m.RangeRequests.Add(1)
	start, end, err := parseRange(rangeHeader, m.FileSize)
	if err != nil {
		http.Error(w, "Invalid range", http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if start == m.FailRangeStart {
		http.Error(w, "Simulated failure", http.StatusInternalServerError)
		return
	}
	if !m.wait(r) {
		return
	}
	body := m.data[start : end+1]
	if start == m.TruncateRangeFrom {
		body = body[:len(body)-1]
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, m.FileSize))
	w.WriteHeader(http.StatusPartialContent)
	w.Write(body)
}

// wait applies the configured latency and reports false if the client went away.
func (m *MockServer) wait(r *http.Request) bool {
	if m.Latency <= 0 {
		return true
	}
	select {
	case <-time.After(m.Latency):
		return true
	case <-r.Context().Done():
		m.Cancelled.Add(1)
		return false
	}
}

// parseRange handles "bytes=start-end" and "bytes=start-".
func parseRange(rangeHeader string, fileSize int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(rangeHeader, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("invalid range prefix")
	}
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid range format")
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	end := fileSize - 1
	if endStr != "" {
		if end, err = strconv.ParseInt(endStr, 10, 64); err != nil {
			return 0, 0, err
		}
	}
	if start < 0 || end >= fileSize || start > end {
		return 0, 0, fmt.Errorf("range out of bounds")
	}
	return start, end, nil
}
