package models

// ErrorKind classifies a failed scrape so callers can decide whether to retry
type ErrorKind string

const (
	ErrorNeedsLogin      ErrorKind = "needs_login"
	ErrorNotGenerated    ErrorKind = "not_generated"
	ErrorLinkNotFound    ErrorKind = "link_not_found"
	ErrorPageLoad        ErrorKind = "page_load"
	ErrorDownloadTimeout ErrorKind = "download_timeout"
	ErrorDownloadFailed  ErrorKind = "download_failed"
	ErrorInvalidPDF      ErrorKind = "invalid_pdf"
	ErrorCancelled       ErrorKind = "cancelled"
	ErrorInternal        ErrorKind = "internal"
	ErrorInvalidOrder    ErrorKind = "invalid_order"
)

// Messages shared by the session and scrape workflows
const (
	MsgCancelled      = "Cancelled by user"
	MsgSessionExpired = "Session expired - login required"
	MsgLoginTimeout   = "Login timeout - please try again"
	MsgInvalidOrderID = "order_id must be a numeric Shopify order id"
)

// Definitive reports whether retrying cannot change the result
func (k ErrorKind) Definitive() bool {
	return k == ErrorNotGenerated || k == ErrorNeedsLogin || k == ErrorCancelled || k == ErrorInvalidOrder
}

// ValidOrderID reports whether id is a numeric admin order id. Order ids end up
// in file names, so anything else is rejected.
func ValidOrderID(id string) bool {
	if id == "" {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ScrapeOutcome is the result of scraping a single invoice
type ScrapeOutcome struct {
	Success        bool      `json:"success"`
	OrderID        string    `json:"shopify_order_id,omitempty"`
	OrderName      string    `json:"order_name,omitempty"`
	InvoiceNumber  string    `json:"invoice_number,omitempty"`
	InvoiceUUID    string    `json:"invoice_uuid,omitempty"`
	InvoiceURL     string    `json:"invoice_url,omitempty"`
	InvoiceDate    string    `json:"invoice_date,omitempty"` // YYYY-MM-DD
	FilePath       string    `json:"filepath,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	NeedsLogin     bool      `json:"needs_login"`
}

// Failure builds a failed outcome for an order
func Failure(orderID, orderName string, kind ErrorKind, msg string) ScrapeOutcome {
	return ScrapeOutcome{
		Success:    false,
		OrderID:    orderID,
		OrderName:  orderName,
		Error:      msg,
		ErrorKind:  kind,
		NeedsLogin: kind == ErrorNeedsLogin,
	}
}

// BatchOutcome aggregates the results of a sequential batch
type BatchOutcome struct {
	RunID      string          `json:"run_id,omitempty"`
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Results    []ScrapeOutcome `json:"results"`
	NeedsLogin bool            `json:"needs_login"`
}

// ScrapeRequest is the payload for scraping a single invoice
type ScrapeRequest struct {
	OrderID   string `json:"order_id"`
	OrderName string `json:"order_name,omitempty"` // e.g. "#8512", used for logging
	OrderDate string `json:"order_date,omitempty"` // ISO timestamp, selects the dated folder
}

// BatchScrapeRequest is the payload for scraping several invoices in sequence
type BatchScrapeRequest struct {
	Orders []ScrapeRequest `json:"orders"`
}
