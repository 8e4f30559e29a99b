// Package invoice holds the pure matchers that find the VAT invoice download
// link and its metadata in an admin order page.
package invoice

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LinkMatcher is one strategy for locating the download link in page markup
type LinkMatcher interface {
	Name() string
	Match(page string) (string, bool)
}

type regexMatcher struct {
	name string
	re   *regexp.Regexp
}

func (m regexMatcher) Name() string { return m.name }

func (m regexMatcher) Match(page string) (string, bool) {
	sub := m.re.FindStringSubmatch(page)
	if sub == nil {
		return "", false
	}
	return html.UnescapeString(sub[1]), true
}

// anchorMatcher walks parsed anchors, catching single-quoted or entity-encoded hrefs
type anchorMatcher struct{}

func (anchorMatcher) Name() string { return "anchor" }

func (anchorMatcher) Match(page string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", false
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if strings.Contains(href, "/tax_invoices/") && strings.Contains(href, "/download/") {
			found = href
			return false
		}
		return true
	})
	return found, found != ""
}

// DefaultLinkMatchers are tried in order; the first hit wins
var DefaultLinkMatchers = []LinkMatcher{
	regexMatcher{"absolute", regexp.MustCompile(`href="(https://admin\.shopify\.com/store/[^"]+/orders/\d+/tax_invoices/[^"]+/download/[^"]+\.pdf)"`)},
	regexMatcher{"relative", regexp.MustCompile(`href="(/store/[^"]+/orders/\d+/tax_invoices/[^"]+/download/[^"]+\.pdf)"`)},
	regexMatcher{"download", regexp.MustCompile(`href="([^"]+/tax_invoices/[^"]+/download/[^"]+\.pdf)"`)},
	regexMatcher{"legacy", regexp.MustCompile(`href="([^"]+/tax_invoices/[^"]+)"`)},
	anchorMatcher{},
}

// FindLink runs the matchers in order and returns the first link with the name of
// the strategy that found it.
func FindLink(page string, matchers []LinkMatcher) (link, strategy string, ok bool) {
	for _, m := range matchers {
		if link, ok := m.Match(page); ok {
			return link, m.Name(), true
		}
	}
	return "", "", false
}

// Absolutize prefixes root-relative links with the admin base URL
func Absolutize(link, baseURL string) string {
	if strings.HasPrefix(link, "/") && !strings.HasPrefix(link, "//") {
		return strings.TrimRight(baseURL, "/") + link
	}
	if strings.HasPrefix(link, "//") {
		return "https:" + link
	}
	return link
}
