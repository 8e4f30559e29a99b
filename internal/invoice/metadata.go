package invoice

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shehryarbajwa/invoice-scraper/internal/dates"
)

// Phrases that show the order page has a VAT invoice section. They track the
// German and English admin UI copy and break silently if Shopify rewords it.
var sectionTerms = []string{
	"MwSt.-Rechnungen",
	"VAT invoices",
	"VAT invoice",
	"tax_invoices",
}

var (
	uuidPattern       = regexp.MustCompile(`/tax_invoices/([a-f0-9-]+)/`)
	numberPattern     = regexp.MustCompile(`vat_invoice_([A-Z0-9-]+)\.pdf`)
	bodyNumberPattern = regexp.MustCompile(`(INV-[A-Z]{2}-\d+)`)
)

// HasInvoiceSection reports whether the page mentions VAT invoices at all
func HasInvoiceSection(page string) bool {
	for _, term := range sectionTerms {
		if strings.Contains(page, term) {
			return true
		}
	}
	return false
}

// UUID extracts the invoice UUID from a download link
func UUID(link string) string {
	if m := uuidPattern.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}

// Number takes the invoice number from the link's file name, then from the
// page body, then falls back to a per-order placeholder.
func Number(link, page, orderID string) string {
	if m := numberPattern.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	if m := bodyNumberPattern.FindStringSubmatch(page); m != nil {
		return m[1]
	}
	return "unknown_" + orderID
}

// Date finds the first localized date in the page's visible text, falling back
// to the raw markup.
func Date(page string) (string, bool) {
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(page)); err == nil {
		if d, ok := dates.ParseLocalized(doc.Text()); ok {
			return d, true
		}
	}
	return dates.ParseLocalized(page)
}
