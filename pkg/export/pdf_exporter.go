package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth = 277.0
	pdfRowHeight = 6.0
)

// PDFExporter renders datasets into a landscape table that repeats its header on every page.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	widths := columnWidths(data)

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.SetHeaderFunc(func() {
		if title != "" && pdf.PageNo() == 1 {
			pdf.SetFont("Arial", "B", 14)
			pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
			pdf.Ln(3)
		}
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], 7, header, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AliasNbPages("")
	pdf.AddPage()

	for i := range data.Rows {
		for j, value := range data.Record(i) {
			pdf.CellFormat(widths[j], pdfRowHeight, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths shares the page width in proportion to the longest value of each column.
func columnWidths(data Dataset) []float64 {
	lengths := make([]int, len(data.Headers))
	total := 0
	for i, header := range data.Headers {
		longest := len(header)
		for _, row := range data.Rows {
			if n := len(row[header]); n > longest {
				longest = n
			}
		}
		lengths[i] = longest + 2
		total += lengths[i]
	}
	widths := make([]float64, len(lengths))
	for i, n := range lengths {
		widths[i] = pdfPageWidth * float64(n) / float64(total)
	}
	return widths
}
