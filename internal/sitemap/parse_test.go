package sitemap

import (
	"strings"
	"testing"

	"github.com/sitemapindexerpro/workercore/internal/model"
)

func TestParseURLSet(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url>
    <loc>https://example.com/a</loc>
    <lastmod>2026-01-01</lastmod>
    <changefreq>daily</changefreq>
    <priority>0.8</priority>
  </url>
  <url>
    <loc>https://example.com/b</loc>
  </url>
</urlset>`

	result, err := Parse(strings.NewReader(doc), "https://example.com/sitemap.xml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if result.Kind != model.SitemapKindURLSet {
		t.Fatalf("Kind = %v, want URLSET", result.Kind)
	}
	if len(result.URLs) != 2 {
		t.Fatalf("len(URLs) = %d, want 2", len(result.URLs))
	}
	if result.URLs[0].Loc != "https://example.com/a" {
		t.Errorf("URLs[0].Loc = %q", result.URLs[0].Loc)
	}
	if result.URLs[0].Priority == nil || *result.URLs[0].Priority != 0.8 {
		t.Errorf("URLs[0].Priority = %v, want 0.8", result.URLs[0].Priority)
	}
	if result.URLs[0].ChangeFreq != "daily" {
		t.Errorf("URLs[0].ChangeFreq = %q, want daily", result.URLs[0].ChangeFreq)
	}
}

func TestParseSitemapIndex(t *testing.T) {
	doc := `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://example.com/sitemap-1.xml</loc></sitemap>
  <sitemap><loc>https://example.com/sitemap-2.xml</loc></sitemap>
</sitemapindex>`

	result, err := Parse(strings.NewReader(doc), "https://example.com/sitemap-index.xml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if result.Kind != model.SitemapKindIndex {
		t.Fatalf("Kind = %v, want INDEX", result.Kind)
	}
	if len(result.ChildSitemaps) != 2 {
		t.Fatalf("len(ChildSitemaps) = %d, want 2", len(result.ChildSitemaps))
	}
}

func TestParseRSSFeed(t *testing.T) {
	doc := `<rss version="2.0"><channel>
  <item><link>https://example.com/post-1</link></item>
  <item><link>https://example.com/post-2</link></item>
</channel></rss>`

	result, err := Parse(strings.NewReader(doc), "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if result.Kind != model.SitemapKindRSS {
		t.Fatalf("Kind = %v, want RSS", result.Kind)
	}
	if len(result.URLs) != 2 {
		t.Fatalf("len(URLs) = %d, want 2", len(result.URLs))
	}
}

func TestParseAtomFeed(t *testing.T) {
	doc := `<feed xmlns="http://www.w3.org/2005/Atom">
  <entry><link href="https://example.com/entry-1"/></entry>
</feed>`

	result, err := Parse(strings.NewReader(doc), "https://example.com/atom.xml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if result.Kind != model.SitemapKindRSS {
		t.Fatalf("Kind = %v, want RSS (atom classified the same way)", result.Kind)
	}
	if len(result.URLs) != 1 || result.URLs[0].Loc != "https://example.com/entry-1" {
		t.Fatalf("URLs = %+v, want one entry pointing at https://example.com/entry-1", result.URLs)
	}
}

func TestParseUnrecognizedRoot(t *testing.T) {
	_, err := Parse(strings.NewReader(`<html><body>not a sitemap</body></html>`), "https://example.com/bad")
	if err == nil {
		t.Fatal("expected an error for an unrecognized root element")
	}
}

func TestParseEmptyDocument(t *testing.T) {
	_, err := Parse(strings.NewReader(``), "https://example.com/empty")
	if err == nil {
		t.Fatal("expected an error for a document with no root element")
	}
}

func TestParseTruncatedDocumentKeepsPartialContent(t *testing.T) {
	// Malformed XML after some <url> entries were already read should
	// surface the entries collected so far rather than erroring out.
	doc := `<urlset><url><loc>https://example.com/a</loc></url><url><loc>https://example.com/b</l`

	result, err := Parse(strings.NewReader(doc), "https://example.com/truncated.xml")
	if err != nil {
		t.Fatalf("Parse() error = %v, want partial success", err)
	}
	if len(result.URLs) != 1 {
		t.Fatalf("len(URLs) = %d, want 1 (only the first fully-closed <url>)", len(result.URLs))
	}
}

func TestParseSkipsEntriesWithoutLoc(t *testing.T) {
	doc := `<urlset><url><lastmod>2026-01-01</lastmod></url><url><loc>https://example.com/ok</loc></url></urlset>`

	result, err := Parse(strings.NewReader(doc), "https://example.com/sitemap.xml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.URLs) != 1 {
		t.Fatalf("len(URLs) = %d, want 1 (entry without <loc> should be dropped)", len(result.URLs))
	}
}
