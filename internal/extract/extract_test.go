package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head>
<title>Testing in Go</title>
<meta name="author" content="Jo Writer">
<meta property="og:site_name" content="Example Blog">
<meta property="article:published_time" content="2026-01-15T10:00:00Z">
</head>
<body>
<article>
<h1>Testing in Go</h1>
<p>Go ships a capable testing package in the standard library. It covers most
day to day needs without extra tooling, and table driven tests keep cases
readable as a suite grows over the lifetime of a project.</p>
<h2>Table tests</h2>
<p>A slice of cases plus a loop is the idiomatic shape for exercising a pure
function across many inputs, and subtests give each case its own name in the
output so failures point at the exact input that broke.</p>
<ul><li>keep cases small</li><li>name them well</li></ul>
<pre>go test ./...</pre>
</article>
</body>
</html>`

func TestCapture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	e := New(10 * time.Second)
	md, meta, err := e.Capture(context.Background(), srv.URL+"/post")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if meta.Title != "Testing in Go" {
		t.Errorf("title = %q", meta.Title)
	}
	if meta.Byline != "Jo Writer" {
		t.Errorf("byline = %q", meta.Byline)
	}
	if meta.SiteName != "Example Blog" {
		t.Errorf("site = %q", meta.SiteName)
	}
	if meta.PublishedTime != "2026-01-15T10:00:00Z" {
		t.Errorf("published = %q", meta.PublishedTime)
	}
	if meta.URL != srv.URL+"/post" {
		t.Errorf("url = %q", meta.URL)
	}

	if !strings.HasPrefix(md, "---\n") {
		t.Errorf("snapshot missing metadata header:\n%s", md[:min(len(md), 120)])
	}
	for _, want := range []string{"title: Testing in Go", "author: Jo Writer", "url: " + srv.URL + "/post"} {
		if !strings.Contains(md, want) {
			t.Errorf("header missing %q", want)
		}
	}
	if !strings.Contains(md, "table driven tests") {
		t.Errorf("content missing:\n%s", md)
	}
}

func TestCaptureErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	e := New(time.Second)
	if _, _, err := e.Capture(context.Background(), srv.URL); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestCaptureTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	e := New(100 * time.Millisecond)
	start := time.Now()
	if _, _, err := e.Capture(context.Background(), srv.URL); err == nil {
		t.Error("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
}

func TestContentMarkdown(t *testing.T) {
	md, err := contentMarkdown(`<div><h2>Head</h2><p>Body text.</p><li>item</li><blockquote>said</blockquote></div>`)
	if err != nil {
		t.Fatalf("contentMarkdown: %v", err)
	}
	for _, want := range []string{"## Head", "Body text.", "- item", "> said"} {
		if !strings.Contains(md, want) {
			t.Errorf("missing %q in:\n%s", want, md)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	got := normalizeText("  line one  \n\n  line two \n")
	if got != "line one line two" {
		t.Errorf("got %q", got)
	}
}
