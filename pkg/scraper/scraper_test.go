package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
)

func TestScraperConfigDefaults(t *testing.T) {
	s := NewWithConfig(ScraperConfig{}, nil)
	assert.Equal(t, 3, s.config.MaxDepth)
	assert.Equal(t, 100, s.config.MaxPages)
	assert.Equal(t, 2.0, s.config.RateLimit)
	assert.NotEmpty(t, s.config.AllowedExtensions)
}

func TestShouldProcessURL(t *testing.T) {
	s := NewWithConfig(ScraperConfig{
		IgnorePatterns:    []string{"/ignore/", "private"},
		AllowedExtensions: []string{".html", "/", ""},
	}, zap.NewNop())
	c := &crawl{host: "example.com"}

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/docs/", true},
		{"https://example.com/page.html", true},
		{"https://example.com/docs/intro", true},
		{"https://example.com/ignore/page.html", false},
		{"https://example.com/private.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
		{"mailto:someone@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s.shouldProcessURL(c, u))
		})
	}
}

func TestCleanContent(t *testing.T) {
	assert.Equal(t, "Hello world", cleanContent("  Hello \n\t world Cookie Policy "))
}

func newSite(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html>
			<head><title>Home</title><script>var x = 1;</script></head>
			<body>
				<nav>Menu</nav>
				<main>
					<h1>Test Content</h1>
					<p>This is a test paragraph.</p>
					<a href="/page2.html#top">Next</a>
					<a href="/page2.html">Next again</a>
					<a href="/missing.html">Broken</a>
					<a href="https://elsewhere.test/out.html">Out</a>
				</main>
			</body>
		</html>`))
	})
	mux.HandleFunc("/page2.html", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`<html><head><title>Second</title></head>
			<body><article>Second page body</article><a href="/">Home</a></body></html>`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &hits
}

func TestScrape(t *testing.T) {
	server, hits := newSite(t)

	var progress []string
	s := NewWithConfig(ScraperConfig{
		MaxDepth:   2,
		RateLimit:  100,
		OnProgress: func(u string) { progress = append(progress, u) },
	}, zap.NewNop())

	docs, err := s.Scrape(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	home := docs[0]
	assert.Equal(t, server.URL+"/", home.URL)
	assert.Equal(t, home.URL, home.ID)
	assert.Equal(t, "Home", home.Title)
	assert.Equal(t, models.TypeWeb, home.Type)
	assert.Contains(t, home.Content, "Test Content")
	assert.Contains(t, home.Content, "This is a test paragraph.")
	assert.NotContains(t, home.Content, "Menu")
	assert.NotContains(t, home.Content, "var x")
	assert.Equal(t, 0, home.Metadata["depth"])

	second := docs[1]
	assert.Equal(t, server.URL+"/page2.html", second.URL)
	assert.Equal(t, "Second", second.Filename)
	assert.Equal(t, "Second page body", second.Content)

	// Home, page2 and the broken link, each fetched once.
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
	assert.Len(t, progress, 3)
}

func TestScrapeLimits(t *testing.T) {
	server, _ := newSite(t)

	s := NewWithConfig(ScraperConfig{MaxPages: 1, RateLimit: 100}, zap.NewNop())
	docs, err := s.Scrape(context.Background(), server.URL+"/")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestScrapeErrors(t *testing.T) {
	server, _ := newSite(t)
	s := NewWithConfig(ScraperConfig{RateLimit: 100}, zap.NewNop())

	_, err := s.Scrape(context.Background(), server.URL+"/missing.html")
	assert.ErrorContains(t, err, "404")

	_, err = s.Scrape(context.Background(), "ftp://example.com/")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Scrape(ctx, server.URL+"/")
	assert.ErrorIs(t, err, context.Canceled)
}
