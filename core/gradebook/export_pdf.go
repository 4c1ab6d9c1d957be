package gradebook

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
)

const (
	PDFType  = "application/pdf"
	pdfTitle = "Student grades"

	pdfMargin     = 10.0
	pdfNameWidth  = 60.0
	pdfRowHeight  = 8.0
	pdfFontSize   = 10.0
	pdfTitleSize  = 14.0
	pdfFontFamily = "Helvetica"
)

// pdfCompression is switched off in tests to keep the page content readable.
var pdfCompression = true

// WritePDF writes the formatted students as a landscape A4 grid, columns following the order of tests.
// The header row is repeated on every page.
func WritePDF(w io.Writer, students []FormattedStudent, tests []Test) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetCompression(pdfCompression)
	pdf.SetTitle(pdfTitle, true)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageWidth, pageHeight := pdf.GetPageSize()
	colWidth := (pageWidth - 2*pdfMargin - pdfNameWidth) / float64(len(tests)+2)

	header := make([]string, 0, len(tests)+2)
	for _, t := range tests {
		header = append(header, fmt.Sprintf("%s (%s)", t.Name, formatNumber(t.MaxGrade)))
	}
	header = append(header, "Total", "Percentage")

	writeHeader := func() {
		pdf.SetFont(pdfFontFamily, "B", pdfFontSize)
		pdf.SetFillColor(30, 64, 175)
		pdf.SetTextColor(255, 255, 255)
		pdf.CellFormat(pdfNameWidth, pdfRowHeight, tr(csvHeader), "1", 0, "L", true, 0, "")
		for _, h := range header {
			pdf.CellFormat(colWidth, pdfRowHeight, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont(pdfFontFamily, "", pdfFontSize)
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.AddPage()
	pdf.SetFont(pdfFontFamily, "B", pdfTitleSize)
	pdf.CellFormat(0, pdfRowHeight, tr(pdfTitle), "", 1, "C", false, 0, "")
	pdf.Ln(2)
	writeHeader()

	for _, st := range students {
		if pdf.GetY()+pdfRowHeight > pageHeight-pdfMargin {
			pdf.AddPage()
			writeHeader()
		}
		pdf.CellFormat(pdfNameWidth, pdfRowHeight, tr(st.Name), "1", 0, "L", false, 0, "")
		for _, t := range tests {
			cell := ungraded
			if v := st.Grades[t.ID]; v != nil {
				cell = formatNumber(*v)
			}
			pdf.CellFormat(colWidth, pdfRowHeight, cell, "1", 0, "C", false, 0, "")
		}
		pdf.CellFormat(colWidth, pdfRowHeight, formatNumber(st.Total), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colWidth, pdfRowHeight, percentage(st.Total, st.MaxPossible), "1", 1, "C", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return errors.Wrap(err, "writing pdf")
	}
	return nil
}

// ExportPDF renders the current state of the store as PDF.
func (s *Store) ExportPDF() ([]byte, error) {
	formatted, tests := s.exportView()
	var buf bytes.Buffer
	if err := WritePDF(&buf, formatted, tests); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
