package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Etymonline scrapes etymonline.com entry pages. There is no API; the
// entry body lives in word sections whose class names carry a build hash,
// so selectors match on stable prefixes only.
type Etymonline struct {
	client  *http.Client
	baseURL string
}

// NewEtymonline returns a fetcher for etymonline.com.
func NewEtymonline(timeout time.Duration) *Etymonline {
	return &Etymonline{
		client:  newHTTPClient(timeout),
		baseURL: "https://www.etymonline.com",
	}
}

func (e *Etymonline) Name() string { return "etymonline" }

func (e *Etymonline) Fetch(ctx context.Context, term string) (*Result, error) {
	pageURL := fmt.Sprintf("%s/word/%s", e.baseURL, url.PathEscape(term))

	body, ok, err := getBody(ctx, e.client, e.Name(), pageURL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("etymonline: parse html: %w", err)
	}

	var sections []string
	doc.Find(`div[class^="word--"] section`).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			sections = append(sections, text)
		}
	})
	if len(sections) == 0 {
		// Markup changed or a minimal page: fall back to any section body.
		doc.Find("section").Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				sections = append(sections, text)
			}
		})
	}
	if len(sections) == 0 {
		return nil, nil
	}

	return &Result{
		SourceName: e.Name(),
		Term:       term,
		Text:       cleanText(strings.Join(sections, "\n\n")),
		URL:        pageURL,
	}, nil
}
