package invoice

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUUID   = "0f3c2a9e-8b1d-4c5e-9f6a-1b2c3d4e5f60"
	absLink    = "https://admin.shopify.com/store/test-store/orders/6123456789/tax_invoices/" + testUUID + "/download/vat_invoice_INV-DE-1042.pdf"
	relLink    = "/store/test-store/orders/6123456789/tax_invoices/" + testUUID + "/download/vat_invoice_INV-DE-1042.pdf"
	legacyLink = "https://admin.shopify.com/store/test-store/orders/6123456789/tax_invoices/" + testUUID
)

func TestFindLink(t *testing.T) {
	tests := []struct {
		name         string
		page         string
		wantLink     string
		wantStrategy string
	}{
		{
			name:         "absolute admin link",
			page:         `<a href="` + absLink + `">Download</a>`,
			wantLink:     absLink,
			wantStrategy: "absolute",
		},
		{
			name:         "relative admin link",
			page:         `<a class="x" href="` + relLink + `">Download</a>`,
			wantLink:     relLink,
			wantStrategy: "relative",
		},
		{
			name:         "other host download link",
			page:         `<a href="https://cdn.example.com/x/tax_invoices/abc/download/file.pdf">pdf</a>`,
			wantLink:     "https://cdn.example.com/x/tax_invoices/abc/download/file.pdf",
			wantStrategy: "download",
		},
		{
			name:         "legacy link without download segment",
			page:         `<a href="` + legacyLink + `">Rechnung</a>`,
			wantLink:     legacyLink,
			wantStrategy: "legacy",
		},
		{
			name:         "single quoted href",
			page:         `<a href='` + relLink + `'>Download</a>`,
			wantLink:     relLink,
			wantStrategy: "anchor",
		},
		{
			name:         "absolute wins over relative",
			page:         `<a href="` + relLink + `">a</a><a href="` + absLink + `">b</a>`,
			wantLink:     absLink,
			wantStrategy: "absolute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, strategy, ok := FindLink(tt.page, DefaultLinkMatchers)
			require.True(t, ok)
			assert.Equal(t, tt.wantLink, link)
			assert.Equal(t, tt.wantStrategy, strategy)
		})
	}
}

func TestFindLink_NoMatch(t *testing.T) {
	_, _, ok := FindLink(`<div class="Polaris-Page"><a href="/store/x/orders/1">Order</a></div>`, DefaultLinkMatchers)
	assert.False(t, ok)
}

func TestFindLink_UnescapesEntities(t *testing.T) {
	page := `<a href="/store/s/orders/1/tax_invoices/abc/download/vat_invoice_A.pdf?x=1&amp;y=2">d</a>`
	link, _, ok := FindLink(page, DefaultLinkMatchers)
	require.True(t, ok)
	assert.Equal(t, "/store/s/orders/1/tax_invoices/abc/download/vat_invoice_A.pdf?x=1&y=2", link)
}

func TestAbsolutize(t *testing.T) {
	base := "https://admin.shopify.com"

	assert.Equal(t, base+relLink, Absolutize(relLink, base))
	assert.Equal(t, base+relLink, Absolutize(relLink, base+"/"))
	assert.Equal(t, absLink, Absolutize(absLink, base))
	assert.Equal(t, "https://cdn.example.com/a.pdf", Absolutize("//cdn.example.com/a.pdf", base))
}

func TestHasInvoiceSection(t *testing.T) {
	assert.True(t, HasInvoiceSection(`<h2>MwSt.-Rechnungen</h2>`))
	assert.True(t, HasInvoiceSection(`<h2>VAT invoices</h2>`))
	assert.True(t, HasInvoiceSection(`<span>VAT invoice</span>`))
	assert.True(t, HasInvoiceSection(`<a href="/tax_invoices/">`))
	assert.False(t, HasInvoiceSection(`<h2>Zahlung</h2>`))
}

func TestUUID(t *testing.T) {
	assert.Equal(t, testUUID, UUID(absLink))
	assert.Equal(t, "", UUID("https://admin.shopify.com/store/x/orders/1"))
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "INV-DE-1042", Number(absLink, "", "1"))
	assert.Equal(t, "INV-AT-77", Number(legacyLink, "<p>Rechnung INV-AT-77</p>", "1"))
	assert.Equal(t, "unknown_6123456789", Number(legacyLink, "<p>nothing</p>", "6123456789"))
}

func TestDate(t *testing.T) {
	d, ok := Date(`<div><span>Rechnung erstellt</span><time>21. Jan. 2026</time></div>`)
	require.True(t, ok)
	assert.Equal(t, "2026-01-21", d)

	// split across elements only matches in the visible text
	d, ok = Date(`<p>5.<b> Mär</b> 2026</p>`)
	require.True(t, ok)
	assert.Equal(t, "2026-03-05", d)

	_, ok = Date(`<p>no date here</p>`)
	assert.False(t, ok)
}

// minimalPDF builds a one-page document with a correct cross-reference table
func minimalPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF(minimalPDF()))
	assert.False(t, IsPDF([]byte("<!DOCTYPE html><html>login</html>")))
	assert.False(t, IsPDF(nil))
}

func TestValidatePDF(t *testing.T) {
	require.NoError(t, ValidatePDF(minimalPDF()))

	assert.ErrorIs(t, ValidatePDF([]byte("<html></html>")), ErrNotPDF)

	err := ValidatePDF([]byte("%PDF-1.4\nthis is not a document"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotPDF)
}
