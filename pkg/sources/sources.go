// Package sources fetches raw etymology text from reference dictionaries.
// Fetchers distinguish "the word has no entry" (nil result, nil error) from
// transport failure (error); callers must keep that distinction intact
// because only confirmed absence may feed the negative cache.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	etymerrors "github.com/odvcencio/etymon/pkg/errors"
)

// maxSourceBytes caps fetched text so one bloated page cannot blow out the
// model context downstream.
const maxSourceBytes = 32 * 1024

const userAgent = "etymon/1.0 (+https://github.com/odvcencio/etymon)"

// Result is one source's text for one term.
type Result struct {
	SourceName string `json:"sourceName"`
	Term       string `json:"term"`
	Text       string `json:"text"`
	URL        string `json:"url"`
}

// Fetcher retrieves one reference source's entry for a term.
type Fetcher interface {
	Name() string
	// Fetch returns (nil, nil) when the source has no entry for term.
	Fetch(ctx context.Context, term string) (*Result, error)
}

// ForNames builds the fetchers for the configured source names in order.
// Unknown names are rejected so a config typo fails loudly at startup.
func ForNames(names []string, timeout time.Duration) ([]Fetcher, error) {
	out := make([]Fetcher, 0, len(names))
	for _, name := range names {
		switch name {
		case "etymonline":
			out = append(out, NewEtymonline(timeout))
		case "wiktionary":
			out = append(out, NewWiktionary(timeout))
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
	}
	return out, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// getBody performs a GET and returns the body, with ok=false for a 404.
// Timeouts are wrapped with a retryable upstream-timeout code so the
// pipeline never mistakes them for confirmed absence.
func getBody(ctx context.Context, client *http.Client, source, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, false, etymerrors.Wrap(err, etymerrors.ErrCodeUpstreamTimeout,
				fmt.Sprintf("%s timed out", source)).WithRetryable(true)
		}
		return nil, false, fmt.Errorf("%s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("%s: http %d", source, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes*4))
	if err != nil {
		return nil, false, fmt.Errorf("%s: read body: %w", source, err)
	}
	return body, true, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

var (
	reSpaces     = regexp.MustCompile(`[ \t]+`)
	reBlankLines = regexp.MustCompile(`\n{3,}`)
)

// cleanText collapses whitespace and truncates to the source byte cap.
func cleanText(s string) string {
	s = reSpaces.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	s = strings.Join(out, "\n")
	s = reBlankLines.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	if len(s) > maxSourceBytes {
		s = s[:maxSourceBytes]
	}
	return s
}
