package fetch

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// noiseSelector matches page chrome that never carries pipeline data.
const noiseSelector = "script, style, nav, footer, header, aside, noscript"

// contentSelector prefers the semantic content container when one exists.
const contentSelector = "main, article, [class*=content]"

var spaceRe = regexp.MustCompile(`[ \t]+`)

// CleanHTML extracts visible text and outbound links from raw HTML. Table
// rows are linearized as pipe-delimited lines inside [TABLE DATA] markers so
// the extractor can recognize tabular pipeline layouts. Text is capped at
// maxChars to bound LLM input cost.
func CleanHTML(html string, maxChars int) (string, []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", nil
	}

	// Links come from the full document, before noise removal.
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" ||
			strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "mailto:") {
			return
		}
		links = append(links, href)
	})

	doc.Find(noiseSelector).Remove()

	// Prefer the semantic content container when present.
	root := doc.Selection
	if main := doc.Find(contentSelector).First(); main.Length() > 0 {
		root = main
	}

	// Linearize tables: pipeline pages very often present assets as rows.
	var tableText strings.Builder
	root.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) > 0 {
			tableText.WriteString(strings.Join(cells, " | "))
			tableText.WriteString("\n")
		}
	})

	text := collapseWhitespace(root.Text())
	if tableText.Len() > 0 {
		text = "[TABLE DATA]\n" + tableText.String() + "[END TABLE]\n\n" + text
	}

	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}
	return text, links
}

// collapseWhitespace trims lines and squeezes runs of spaces.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var kept []string
	for _, line := range lines {
		line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// ResolveURL resolves an href against the page it was found on. Returns ""
// when either part does not parse.
func ResolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	h, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(h).String()
}
