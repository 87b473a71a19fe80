// Package scraper crawls a website on one host and turns each page's main
// content into a document for the knowledge base.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/pai/internal/models"
)

type ScraperConfig struct {
	MaxDepth          int
	MaxPages          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	UserAgent         string
	OnProgress        func(url string)
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewWithConfig(config ScraperConfig, logger *zap.Logger) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.MaxPages == 0 {
		config.MaxPages = 100
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	if config.UserAgent == "" {
		config.UserAgent = "pai-scraper/1.0"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scraper{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger,
	}
}

// crawl holds the state of one Scrape call.
type crawl struct {
	host    string
	visited map[string]bool
	docs    []models.Document
}

func (s *Scraper) shouldProcessURL(c *crawl, u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host != c.host {
		return false
	}

	path := strings.ToLower(u.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if allowedExt == "" {
			// Extensionless paths such as /docs/intro.
			if !strings.Contains(path[strings.LastIndex(path, "/")+1:], ".") {
				validExt = true
				break
			}
			continue
		}
		if strings.HasSuffix(path, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(u.String(), pattern) {
			return false
		}
	}
	return true
}

var noisePatterns = []string{
	"Cookie Policy",
	"Accept Cookies",
	"Privacy Policy",
	"Terms of Service",
}

func cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}
	return strings.TrimSpace(content)
}

var contentSelectors = []string{
	"main",
	"article",
	".content",
	"#content",
	".documentation",
	"#documentation",
}

func extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()

	var content string
	for _, selector := range contentSelectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if strings.TrimSpace(content) == "" {
		content = doc.Find("body").Text()
	}
	return cleanContent(content)
}

// Scrape crawls from startURL. A failure on the start page is returned; failures
// on linked pages are logged and skipped.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]models.Document, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", startURL, err)
	}
	if start.Scheme != "http" && start.Scheme != "https" {
		return nil, fmt.Errorf("invalid url %q: scheme must be http or https", startURL)
	}
	start.Fragment = ""

	c := &crawl{host: start.Host, visited: make(map[string]bool)}
	if err := s.scrapeRecursive(ctx, c, start, 0); err != nil {
		return nil, err
	}
	s.logger.Info("scrape finished", zap.String("url", startURL), zap.Int("pages", len(c.docs)))
	return c.docs, nil
}

func (s *Scraper) scrapeRecursive(ctx context.Context, c *crawl, u *url.URL, depth int) error {
	urlStr := u.String()
	if depth > s.config.MaxDepth || c.visited[urlStr] || len(c.docs) >= s.config.MaxPages {
		return nil
	}
	if !s.shouldProcessURL(c, u) {
		return nil
	}
	c.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	doc, header, err := s.fetch(ctx, urlStr)
	if err != nil {
		return err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	content := extractMainContent(doc)
	name := title
	if name == "" {
		name = urlStr
	}
	c.docs = append(c.docs, models.Document{
		ID:       urlStr,
		URL:      urlStr,
		Title:    title,
		Filename: name,
		Type:     models.TypeWeb,
		Content:  content,
		Size:     int64(len(content)),
		Metadata: map[string]interface{}{
			models.MetaURL:   urlStr,
			models.MetaTitle: title,
			"depth":          depth,
			"scraped_at":     time.Now().UTC().Format(time.RFC3339),
			"content_type":   header.Get("Content-Type"),
			"last_modified":  header.Get("Last-Modified"),
		},
	})

	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			s.logger.Debug("skipping bad link", zap.String("href", href), zap.Error(err))
			return
		}
		next := u.ResolveReference(ref)
		next.Fragment = ""
		links = append(links, next)
	})

	for _, next := range links {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.scrapeRecursive(ctx, c, next, depth+1); err != nil {
			s.logger.Warn("error scraping page", zap.String("url", next.String()), zap.Error(err))
		}
	}
	return nil
}

func (s *Scraper) fetch(ctx context.Context, urlStr string) (*goquery.Document, http.Header, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return doc, resp.Header, nil
}
