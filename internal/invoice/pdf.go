package invoice

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var pdfMagic = []byte("%PDF")

// ErrNotPDF is returned for payloads without the PDF magic header, typically an
// HTML error or login page served instead of the document.
var ErrNotPDF = errors.New("content is not a PDF")

var disableConfigDir sync.Once

// IsPDF checks the magic header only
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// ValidatePDF checks the magic header and then parses the document structure
// with pdfcpu in relaxed mode.
func ValidatePDF(data []byte) error {
	if !IsPDF(data) {
		return ErrNotPDF
	}

	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return fmt.Errorf("pdf structure invalid: %w", err)
	}
	return nil
}
