package fetch

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Elements removed before text extraction.
const noiseSelector = "script, style, noscript, template, svg, iframe, nav, footer, header, aside, form"

// Block elements get a trailing newline so their text does not run together.
const blockSelector = "p, div, section, article, main, li, br, tr, h1, h2, h3, h4, h5, h6, pre, blockquote"

// HTMLText returns the page title and readable body text of an HTML document.
// The title is <title>, then og:title, then the first <h1>.
func HTMLText(r io.Reader) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", err
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
		title = strings.TrimSpace(title)
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	doc.Find(noiseSelector).Remove()
	doc.Find(blockSelector).AppendHtml("\n")

	// Prefer the main content region when the page marks one.
	root := doc.Find("main, article, [role='main']").First()
	if root.Length() == 0 || len(strings.TrimSpace(root.Text())) < 100 {
		root = doc.Find("body")
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	return title, cleanLines(root.Text()), nil
}
