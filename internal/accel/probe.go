package accel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tanq16/accel/internal/utils"
)

// ProbeMetadata issues a HEAD request and returns the advertised content
// length. There is no fallback for servers that omit Content-Length.
func ProbeMetadata(ctx context.Context, client utils.HTTPDoer, rawURL string) (ContentMetadata, error) {
	log := utils.LoggerFrom(ctx, "probe")
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return ContentMetadata{}, &MetadataError{URL: rawURL, Err: fmt.Errorf("error creating request: %w", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return ContentMetadata{}, &MetadataError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	log.Debug().Str("op", "probe").Int("status", resp.StatusCode).Msg("HEAD response received")
	for key := range resp.Header {
		log.Debug().Str("op", "probe").Str("header", key).Str("value", resp.Header.Get(key)).Msg("HTTP header")
	}

	if resp.StatusCode >= 400 {
		return ContentMetadata{}, &MetadataError{URL: rawURL, Err: fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)}
	}
	size, err := parseContentLength(resp)
	if err != nil {
		return ContentMetadata{}, &MetadataError{URL: rawURL, Err: err}
	}
	meta := ContentMetadata{
		TotalBytes:   size,
		AcceptRanges: resp.Header.Get("Accept-Ranges") == "bytes",
		Header:       resp.Header.Clone(),
	}
	if !meta.AcceptRanges {
		log.Warn().Str("op", "probe").Str("url", rawURL).Msg("Server does not advertise byte range support")
	}
	log.Debug().Str("op", "probe").Int64("bytes", size).Str("size", utils.FormatBytes(size)).Msg("Content length determined")
	return meta, nil
}

func parseContentLength(resp *http.Response) (int64, error) {
	contentLength := resp.Header.Get("Content-Length")
	if contentLength == "" {
		if resp.ContentLength > 0 {
			return resp.ContentLength, nil
		}
		return 0, errors.New("server didn't provide Content-Length header")
	}
	size, err := strconv.ParseInt(contentLength, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid Content-Length %q: %w", contentLength, err)
	}
	if size < 0 {
		return 0, fmt.Errorf("invalid file size reported by server: %d", size)
	}
	return size, nil
}
