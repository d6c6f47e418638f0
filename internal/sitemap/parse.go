package sitemap

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	workererrors "github.com/sitemapindexerpro/workercore/infrastructure/errors"
	"github.com/sitemapindexerpro/workercore/internal/model"
)

// URLEntry is one parsed <url> (or feed item) record, not yet persisted.
type URLEntry struct {
	Loc        string
	LastMod    string
	ChangeFreq string
	Priority   *float64
}

// ParseResult is C3's output contract: a classified document plus the
// entries or child sitemap locs it carries.
type ParseResult struct {
	Kind          model.SitemapKind
	URLs          []URLEntry
	ChildSitemaps []string
}

// Parse streams tokens from r without buffering the whole document,
// classifying the root element and collecting entries as the matching
// case describes. A parse error after some content was extracted
// yields that partial content with no error; a parse error before any
// content was extracted yields InvalidSitemap.
func Parse(r io.Reader, sourceURL string) (*ParseResult, error) {
	dec := xml.NewDecoder(r)
	result := &ParseResult{}

	var (
		rootSeen   bool
		inURL      bool
		inSitemap  bool
		inItem     bool
		inEntry    bool
		current    URLEntry
		textBuf    strings.Builder
		linkHref   string
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if rootSeen && (len(result.URLs) > 0 || len(result.ChildSitemaps) > 0) {
				return result, nil
			}
			return nil, workererrors.InvalidSitemap(sourceURL, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := localName(t.Name.Local)
			if !rootSeen {
				rootSeen = true
				switch name {
				case "sitemapindex":
					result.Kind = model.SitemapKindIndex
				case "urlset":
					result.Kind = model.SitemapKindURLSet
				case "rss", "feed":
					result.Kind = model.SitemapKindRSS
				default:
					return nil, workererrors.InvalidSitemap(sourceURL, errUnrecognizedRoot(name))
				}
			}
			switch name {
			case "url":
				inURL = true
				current = URLEntry{}
			case "sitemap":
				inSitemap = true
			case "item":
				inItem = true
				current = URLEntry{}
			case "entry":
				inEntry = true
				current = URLEntry{}
			case "link":
				if inEntry {
					for _, attr := range t.Attr {
						if localName(attr.Name.Local) == "href" {
							linkHref = attr.Value
						}
					}
				}
			}
			textBuf.Reset()

		case xml.CharData:
			textBuf.Write(t)

		case xml.EndElement:
			name := localName(t.Name.Local)
			text := strings.TrimSpace(textBuf.String())
			textBuf.Reset()

			switch {
			case inURL && name == "loc":
				current.Loc = text
			case inURL && name == "lastmod":
				current.LastMod = text
			case inURL && name == "changefreq":
				current.ChangeFreq = text
			case inURL && name == "priority":
				if p, err := strconv.ParseFloat(text, 64); err == nil {
					current.Priority = &p
				}
			case inSitemap && name == "loc":
				if text != "" {
					result.ChildSitemaps = append(result.ChildSitemaps, text)
				}
			case inItem && name == "link":
				current.Loc = text
			case inEntry && name == "link" && linkHref != "":
				current.Loc = linkHref
				linkHref = ""
			}

			switch name {
			case "url":
				if inURL {
					inURL = false
					if current.Loc != "" {
						result.URLs = append(result.URLs, current)
					}
				}
			case "sitemap":
				inSitemap = false
			case "item":
				if inItem {
					inItem = false
					if current.Loc != "" {
						result.URLs = append(result.URLs, current)
					}
				}
			case "entry":
				if inEntry {
					inEntry = false
					if current.Loc != "" {
						result.URLs = append(result.URLs, current)
					}
				}
			}
		}
	}

	if !rootSeen {
		return nil, workererrors.InvalidSitemap(sourceURL, errNoRootElement)
	}
	return result, nil
}

func localName(name string) string {
	if idx := strings.LastIndex(name, ":"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

type errUnrecognizedRoot string

func (e errUnrecognizedRoot) Error() string {
	return "unrecognized sitemap root element: " + string(e)
}

var errNoRootElement = errUnrecognizedRoot("<none>")
