package links

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// WebSearcher scrapes result links from the DuckDuckGo Lite HTML page.
type WebSearcher struct {
	baseURL string
	client  *http.Client
}

func NewWebSearcher(baseURL string, client *http.Client) *WebSearcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebSearcher{baseURL: baseURL, client: client}
}

func (w *WebSearcher) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	searchURL := w.baseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed with status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	var (
		links []string
		seen  = map[string]bool{}
	)
	doc.Find("a.result-link").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		link := cleanDuckDuckGoURL(href)
		if link == "" || seen[link] {
			return true
		}
		seen[link] = true
		links = append(links, link)
		return len(links) < limit
	})
	return links, nil
}

// cleanDuckDuckGoURL extracts the target from a DuckDuckGo redirect link.
func cleanDuckDuckGoURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "uddg=") {
		if strings.HasPrefix(raw, "//") {
			raw = "https:" + raw
		}
		if u, err := url.Parse(raw); err == nil {
			if target := u.Query().Get("uddg"); target != "" {
				return target
			}
		}
	}
	return raw
}
