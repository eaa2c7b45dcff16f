package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quarrydocs/quarry/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocsSource_Validation(t *testing.T) {
	_, err := NewDocsSource(DocsConfig{})
	assert.Error(t, err)

	_, err = NewDocsSource(DocsConfig{StartURL: "ftp://example.com"})
	assert.Error(t, err)

	s, err := NewDocsSource(DocsConfig{StartURL: "https://docs.example.com/intro"})
	require.NoError(t, err)
	assert.Equal(t, defaultParallelism, s.cfg.Parallelism)
	assert.Equal(t, defaultRequestDelay, s.cfg.RequestDelay)
}

func TestDocsSource_ShouldIncludePath(t *testing.T) {
	s, err := NewDocsSource(DocsConfig{
		StartURL:        "https://docs.example.com/",
		IncludePatterns: []string{"/docs/**", "/guides/*"},
		ExcludePatterns: []string{"/docs/internal/**"},
	})
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"/docs/install", true},
		{"/docs/deep/nested/page", true},
		{"/guides/intro", true},
		{"/guides/deep/nested", false},
		{"/docs/internal/secrets", false},
		{"/blog/post", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, s.shouldIncludePath(tt.path))
		})
	}
}

func TestDocsSource_ShouldIncludePath_NoIncludes(t *testing.T) {
	s, err := NewDocsSource(DocsConfig{
		StartURL:        "https://docs.example.com/",
		ExcludePatterns: []string{"/api/**"},
	})
	require.NoError(t, err)

	assert.True(t, s.shouldIncludePath("/anything"))
	assert.True(t, s.shouldIncludePath(""))
	assert.False(t, s.shouldIncludePath("/api/v1/users"))
}

func TestDocsSource_ExtractDocument_HTML(t *testing.T) {
	s, err := NewDocsSource(DocsConfig{StartURL: "https://docs.example.com/"})
	require.NoError(t, err)

	html := `<html><head><title>Install Guide</title><script>nav()</script></head>
<body>
<style>.x{}</style>
<h1>Installing</h1>
<p>Run the installer.</p>
<noscript>enable js</noscript>
</body></html>`

	doc := s.extractDocument("https://docs.example.com/install", "/install", "text/html; charset=utf-8", []byte(html))
	require.NotNil(t, doc)

	assert.Equal(t, "https://docs.example.com/install", doc.ID)
	assert.Equal(t, "Install Guide", doc.Title)
	assert.Contains(t, doc.Text, "Installing")
	assert.Contains(t, doc.Text, "Run the installer.")
	assert.NotContains(t, doc.Text, "nav()")
	assert.NotContains(t, doc.Text, "enable js")
	assert.Equal(t, core.OriginDocs, doc.Origin)
	assert.Equal(t, core.ContentDoc, doc.Content)
}

func TestDocsSource_ExtractDocument_MarkdownPassthrough(t *testing.T) {
	s, err := NewDocsSource(DocsConfig{StartURL: "https://docs.example.com/"})
	require.NoError(t, err)

	body := "# Title\r\n\r\nSome   content.\r\n"
	doc := s.extractDocument("https://docs.example.com/readme.md", "/readme.md", "text/markdown", []byte(body))
	require.NotNil(t, doc)

	assert.Equal(t, "readme.md", doc.Title, "markdown pages fall back to the path base")
	assert.Equal(t, "# Title\n\nSome   content.", doc.Text)
}

func TestDocsSource_ExtractDocument_SkipsNonText(t *testing.T) {
	s, err := NewDocsSource(DocsConfig{StartURL: "https://docs.example.com/"})
	require.NoError(t, err)

	doc := s.extractDocument("https://docs.example.com/data.bin", "/data.bin", "application/octet-stream", []byte{0, 1, 2})
	assert.Nil(t, doc)
}

func TestDocsSource_CrawlsLinkedPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Home</title></head><body>
<p>Welcome to the docs.</p>
<a href="/install">Install</a>
<a href="/install#anchor">Install anchor</a>
<a href="mailto:x@example.com">mail</a>
</body></html>`)
	})
	mux.HandleFunc("/install", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Install</title></head><body>
<p>Run the installer.</p>
</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s, err := NewDocsSource(DocsConfig{
		StartURL:     server.URL + "/",
		IgnoreRobots: true,
		RequestDelay: time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	titles := map[string]bool{}
	for {
		doc, err := s.Next(ctx)
		if errors.Is(err, ErrExhausted) {
			break
		}
		require.NoError(t, err)
		titles[doc.Title] = true
	}

	assert.True(t, titles["Home"])
	assert.True(t, titles["Install"])
	assert.Len(t, titles, 2, "anchor variants dedupe to one visit")
}

func TestDocsSource_CountsUningestiblePages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Home</title></head><body>
<p>Welcome.</p>
<a href="/data">binary payload</a>
</body></html>`)
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte{0, 1, 2, 3})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s, err := NewDocsSource(DocsConfig{
		StartURL:     server.URL + "/",
		IgnoreRobots: true,
		RequestDelay: time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count := 0
	for {
		_, err := s.Next(ctx)
		if errors.Is(err, ErrExhausted) {
			break
		}
		require.NoError(t, err)
		count++
	}

	// The fetched-but-uningestible page counts as skipped instead of
	// silently vanishing.
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, s.SkippedDocs())
}

func TestDocsSource_MaxPages(t *testing.T) {
	mux := http.NewServeMux()
	for i := 0; i < 10; i++ {
		page := fmt.Sprintf("/page%d", i)
		next := fmt.Sprintf("/page%d", i+1)
		mux.HandleFunc(page, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `<html><head><title>%s</title></head><body><p>content</p><a href="%s">next</a></body></html>`, page, next)
		})
	}
	server := httptest.NewServer(mux)
	defer server.Close()

	s, err := NewDocsSource(DocsConfig{
		StartURL:     server.URL + "/page0",
		IgnoreRobots: true,
		MaxPages:     3,
		RequestDelay: time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count := 0
	for {
		_, err := s.Next(ctx)
		if errors.Is(err, ErrExhausted) {
			break
		}
		require.NoError(t, err)
		count++
	}

	assert.Equal(t, 3, count)
}
