package utils

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

// OutputPathFromURL derives the local file name from the last path segment
// of rawURL, falling back to DefaultOutputName when the path is empty.
func OutputPathFromURL(rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	name := strings.TrimSpace(path.Base(parsedURL.Path))
	if name == "" || name == "/" || name == "." {
		return DefaultOutputName, nil
	}
	if strings.ContainsAny(name, `/\`) {
		return "", ErrNoURLPath
	}
	return name, nil
}

// ParseHeaderArgs turns "Key: value" arguments into a map with canonical keys.
func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// SplitProxyAuth moves credentials embedded in a proxy URL into separate
// values so they are not logged with the URL.
func SplitProxyAuth(proxyURL string) (string, string, string) {
	parsedProxy, err := url.Parse(proxyURL)
	if err != nil || parsedProxy.User == nil {
		return proxyURL, "", ""
	}
	username := parsedProxy.User.Username()
	password, _ := parsedProxy.User.Password()
	parsedProxy.User = nil
	return parsedProxy.String(), username, password
}

func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(bytes))
}

// ParseRate parses sizes like "512KiB" or "2MB" into bytes per second.
// An empty string means unlimited and returns 0.
func ParseRate(rate string) (int64, error) {
	if strings.TrimSpace(rate) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(rate)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q: %w", rate, err)
	}
	return int64(n), nil
}

func TempDirFor(outputPath, override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(filepath.Dir(outputPath), TempDirName)
}

// CleanFunction removes leftover segment files belonging to outputPath and
// drops the temp directory once it is empty.
func CleanFunction(outputPath, tempDir string) (int, error) {
	tempDir = TempDirFor(outputPath, tempDir)
	files, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	partPrefix := filepath.Base(outputPath) + "."
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), partPrefix) || !PartFileRegex.MatchString(file.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(tempDir, file.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, RemoveIfEmpty(tempDir)
}

// CleanLocal removes every segment file in the temp directory of dir, or in
// tempDir when given, then drops the directory once it is empty. Files that
// are not segments are kept.
func CleanLocal(dir, tempDir string) (int, error) {
	if tempDir == "" {
		tempDir = filepath.Join(dir, TempDirName)
	}
	files, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, file := range files {
		if file.IsDir() || !PartFileRegex.MatchString(file.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(tempDir, file.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, RemoveIfEmpty(tempDir)
}

func RemoveIfEmpty(dir string) error {
	remainingFiles, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(remainingFiles) == 0 {
		return os.Remove(dir)
	}
	return nil
}
