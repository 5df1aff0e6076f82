package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Wiktionary queries the MediaWiki extracts API for plain-text entries and
// trims them down to the English etymology sections.
type Wiktionary struct {
	client  *http.Client
	baseURL string
}

// NewWiktionary returns a fetcher for en.wiktionary.org.
func NewWiktionary(timeout time.Duration) *Wiktionary {
	return &Wiktionary{
		client:  newHTTPClient(timeout),
		baseURL: "https://en.wiktionary.org",
	}
}

func (w *Wiktionary) Name() string { return "wiktionary" }

type wikiExtractResponse struct {
	Query struct {
		Pages []struct {
			Title   string `json:"title"`
			Missing bool   `json:"missing"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

func (w *Wiktionary) Fetch(ctx context.Context, term string) (*Result, error) {
	params := url.Values{
		"action":        {"query"},
		"prop":          {"extracts"},
		"explaintext":   {"1"},
		"redirects":     {"1"},
		"format":        {"json"},
		"formatversion": {"2"},
		"titles":        {term},
	}
	apiURL := w.baseURL + "/w/api.php?" + params.Encode()

	body, ok, err := getBody(ctx, w.client, w.Name(), apiURL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var parsed wikiExtractResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("wiktionary: decode response: %w", err)
	}
	if len(parsed.Query.Pages) == 0 || parsed.Query.Pages[0].Missing {
		return nil, nil
	}
	extract := parsed.Query.Pages[0].Extract
	if strings.TrimSpace(extract) == "" {
		return nil, nil
	}

	text := etymologySections(extract)
	if text == "" {
		// No etymology heading; the whole extract is still useful context.
		text = extract
	}

	return &Result{
		SourceName: w.Name(),
		Term:       term,
		Text:       cleanText(text),
		URL:        fmt.Sprintf("%s/wiki/%s", w.baseURL, url.PathEscape(term)),
	}, nil
}

var headingRe = regexp.MustCompile(`(?m)^(=+)\s*(.+?)\s*=+\s*$`)

// etymologySections pulls every "Etymology" section body out of a plain
// text extract. Wiktionary nests them under the language heading, so a page
// can carry several (Etymology, Etymology 1, Etymology 2, ...).
func etymologySections(extract string) string {
	matches := headingRe.FindAllStringSubmatchIndex(extract, -1)
	var parts []string
	for i, m := range matches {
		level := m[3] - m[2]
		title := extract[m[4]:m[5]]
		if !strings.HasPrefix(title, "Etymology") {
			continue
		}
		bodyStart := m[1]
		bodyEnd := len(extract)
		for _, next := range matches[i+1:] {
			if next[3]-next[2] <= level {
				bodyEnd = next[0]
				break
			}
		}
		if body := strings.TrimSpace(extract[bodyStart:bodyEnd]); body != "" {
			parts = append(parts, body)
		}
	}
	return strings.Join(parts, "\n\n")
}
