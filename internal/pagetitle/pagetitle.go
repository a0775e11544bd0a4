// Package pagetitle looks up readable page titles for saved tabs that were
// imported without one.
package pagetitle

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/lotas/tabgroupsync/internal/applog"
	"github.com/lotas/tabgroupsync/internal/types"
)

var skipPrefixes = []string{"about:", "moz-extension:", "chrome-extension:", "file:", "chrome:", "resource:", "data:"}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func shouldSkip(url string) bool {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// Resolver fetches pages and extracts their titles.
type Resolver struct {
	client   *http.Client
	parallel int
}

// New returns a Resolver with a 15s per-page timeout.
func New() *Resolver {
	return &Resolver{client: &http.Client{Timeout: 15 * time.Second}, parallel: 10}
}

// Title fetches url and returns its readable title. Non-HTTP URLs are
// rejected without a request.
func (r *Resolver) Title(ctx context.Context, url string) (string, error) {
	if shouldSkip(url) {
		return "", fmt.Errorf("skipping non-HTTP URL: %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, resp.Request.URL)
	if err != nil {
		return "", fmt.Errorf("extract readable content from %s: %w", url, err)
	}
	return strings.TrimSpace(article.Title), nil
}

// FillTitles sets the title of every tab that has none, in place. Tabs whose
// page cannot be fetched keep their URL as title. Returns the number of
// titles found.
func (r *Resolver) FillTitles(ctx context.Context, groups []types.SavedTabGroup) int {
	sem := make(chan struct{}, r.parallel)
	var wg sync.WaitGroup
	var mu sync.Mutex
	found := 0

	for gi := range groups {
		for ti := range groups[gi].Tabs {
			tab := &groups[gi].Tabs[ti]
			if tab.Title != "" {
				continue
			}
			wg.Add(1)
			go func(tab *types.SavedTabGroupTab) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				title, err := r.Title(ctx, tab.URL)
				if err != nil || title == "" {
					if err != nil {
						applog.Warn("pagetitle.fetch", "url", tab.URL, "error", err)
					}
					tab.Title = tab.URL
					return
				}
				tab.Title = title
				mu.Lock()
				found++
				mu.Unlock()
			}(tab)
		}
	}
	wg.Wait()
	return found
}
