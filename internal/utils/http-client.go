package utils

import (
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

type HTTPClientConfig struct {
	Timeout        time.Duration // dial, TLS handshake and response-header wait; bodies are bounded by the context
	KATimeout      time.Duration
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	UserAgent      string
	Headers        map[string]string
	HighThreadMode bool // advanced socket options for high concurrency
}

// HTTPDoer is the subset of an HTTP client the engine needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// engineHeaders are set per request by the engine and never taken from user input.
var engineHeaders = map[string]bool{
	"Range":           true,
	"Connection":      true,
	"Accept-Encoding": true,
}

// AccelHTTPClient is shared by the probe and every segment worker of a run.
type AccelHTTPClient struct {
	client    *http.Client
	userAgent string
	headers   http.Header
}

func NewAccelHTTPClient(cfg HTTPClientConfig) *AccelHTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 60 * time.Second
	}
	dialer := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: 30 * time.Second,
	}
	if cfg.HighThreadMode {
		dialer.Control = func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				setSocketOptions(fd)
			})
		}
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
		IdleConnTimeout:       cfg.KATimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		DisableCompression:    true, // byte ranges must address the raw representation
	}
	if cfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = ToolUserAgent
	}
	headers := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		key := http.CanonicalHeaderKey(k)
		if engineHeaders[key] {
			continue
		}
		headers.Set(key, v)
	}
	return &AccelHTTPClient{
		client:    &http.Client{Transport: transport},
		userAgent: userAgent,
		headers:   headers,
	}
}

// Do sends req with the configured User-Agent and custom headers. Headers the
// engine controls, such as Range, are never replaced.
func (c *AccelHTTPClient) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	for key, values := range c.headers {
		req.Header[key] = values
	}
	return c.client.Do(req)
}
