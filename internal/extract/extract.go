// Package extract fetches a web page and converts its main content into the
// markdown snapshot format stored alongside page notes: a metadata header
// followed by the readable article text.
package extract

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Metadata describes the extracted article.
type Metadata struct {
	Title         string    `json:"title"`
	Byline        string    `json:"byline,omitempty"`
	SiteName      string    `json:"siteName,omitempty"`
	PublishedTime string    `json:"publishedTime,omitempty"`
	URL           string    `json:"url"`
	ExtractedAt   time.Time `json:"extractedAt"`
}

// Extractor fetches pages with a fixed load-time ceiling; after the timeout
// the fetch is abandoned rather than waited on indefinitely.
type Extractor struct {
	client  *http.Client
	timeout time.Duration
}

// New creates an Extractor with the given page-load timeout.
func New(timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Extractor{client: &http.Client{}, timeout: timeout}
}

// Capture fetches rawURL and returns the markdown snapshot (header included)
// plus its metadata.
func (e *Extractor) Capture(ctx context.Context, rawURL string) (string, *Metadata, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("extract: parse url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("extract: build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("extract: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("extract: fetch %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("extract: read body: %w", err)
	}

	parser := readability.NewParser()
	article, err := parser.Parse(bytes.NewReader(body), u)
	if err != nil {
		return "", nil, fmt.Errorf("extract: readability: %w", err)
	}

	meta := &Metadata{
		Title:       article.Title,
		Byline:      article.Byline,
		SiteName:    article.SiteName,
		URL:         rawURL,
		ExtractedAt: time.Now(),
	}
	fillFromHead(body, meta)

	md, err := contentMarkdown(article.Content)
	if err != nil || md == "" {
		// Fall back to the flat text content when the clean HTML cannot
		// be walked.
		md = normalizeText(article.TextContent)
	}

	return header(meta) + md, meta, nil
}

// fillFromHead pulls metadata the readability pass does not expose from the
// raw document's meta tags.
func fillFromHead(body []byte, meta *Metadata) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if meta.Byline == "" {
		if v, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok {
			meta.Byline = strings.TrimSpace(v)
		}
	}
	if meta.SiteName == "" {
		if v, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok {
			meta.SiteName = strings.TrimSpace(v)
		}
	}
	if v, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		meta.PublishedTime = strings.TrimSpace(v)
	}
}

// contentMarkdown walks the readability-cleaned HTML and emits markdown for
// the content-bearing elements.
func contentMarkdown(cleanHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cleanHTML))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	doc.Find("h1,h2,h3,h4,p,li,pre,blockquote").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		text := normalizeText(s.Text())
		if text == "" {
			return
		}
		switch tag {
		case "h1":
			b.WriteString("# " + text + "\n\n")
		case "h2":
			b.WriteString("## " + text + "\n\n")
		case "h3":
			b.WriteString("### " + text + "\n\n")
		case "h4":
			b.WriteString("#### " + text + "\n\n")
		case "li":
			b.WriteString("- " + text + "\n")
		case "pre":
			b.WriteString("```\n" + strings.TrimSpace(s.Text()) + "\n```\n\n")
		case "blockquote":
			b.WriteString("> " + strings.ReplaceAll(text, "\n", "\n> ") + "\n\n")
		default:
			b.WriteString(text + "\n\n")
		}
	})
	return strings.TrimSpace(b.String()), nil
}

func normalizeText(input string) string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, " ")
}

// header renders the snapshot's metadata block.
func header(meta *Metadata) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %s\n", meta.Title)
	if meta.Byline != "" {
		fmt.Fprintf(&b, "author: %s\n", meta.Byline)
	}
	if meta.SiteName != "" {
		fmt.Fprintf(&b, "site: %s\n", meta.SiteName)
	}
	if meta.PublishedTime != "" {
		fmt.Fprintf(&b, "published: %s\n", meta.PublishedTime)
	}
	fmt.Fprintf(&b, "url: %s\n", meta.URL)
	fmt.Fprintf(&b, "extracted: %s\n", meta.ExtractedAt.Format(time.RFC3339))
	b.WriteString("---\n\n")
	return b.String()
}
