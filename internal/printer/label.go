// Package printer renders sleeve labels for published scans: a QR code
// pointing at the live marketplace product plus the product code and price.
package printer

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
)

// LabelItem is one label's content
type LabelItem struct {
	ProductCode string
	Name        string
	Price       float64
	Currency    string
	QRContent   string // marketplace product URL
}

// Layout positions labels on an A4 sheet
type Layout struct {
	Cols       int
	Rows       int
	MarginTop  float64
	MarginLeft float64
	GapX       float64
	GapY       float64
}

// DefaultLayout fits standard 3x8 sticker sheets
func DefaultLayout() Layout {
	return Layout{Cols: 3, Rows: 8, MarginTop: 10, MarginLeft: 7, GapX: 2.5, GapY: 0}
}

// GenerateLabelSheet creates a PDF with one label per item
func GenerateLabelSheet(items []LabelItem, layout Layout) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 8)

	pageWidth, pageHeight := 210.0, 297.0

	totalGapX := float64(layout.Cols-1) * layout.GapX
	totalGapY := float64(layout.Rows-1) * layout.GapY
	availW := pageWidth - (layout.MarginLeft * 2)
	availH := pageHeight - (layout.MarginTop * 2)
	labelW := (availW - totalGapX) / float64(layout.Cols)
	labelH := (availH - totalGapY) / float64(layout.Rows)

	labelsPerPage := layout.Cols * layout.Rows

	for i, item := range items {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}

		indexOnPage := i % labelsPerPage
		col := indexOnPage % layout.Cols
		row := indexOnPage / layout.Cols

		x := layout.MarginLeft + float64(col)*(labelW+layout.GapX)
		y := layout.MarginTop + float64(row)*(labelH+layout.GapY)

		qrPng, err := qrcode.Encode(item.QRContent, qrcode.Low, 256)
		if err != nil {
			return nil, fmt.Errorf("qr encode failed for %s: %w", item.ProductCode, err)
		}

		imgName := fmt.Sprintf("qr_%d", i)
		opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
		_ = pdf.RegisterImageOptionsReader(imgName, opts, bytes.NewReader(qrPng))

		// QR on the left, text stacked on the right
		qrSize := labelH * 0.8
		if qrSize > labelW*0.45 {
			qrSize = labelW * 0.45
		}
		qrX := x + 1
		qrY := y + (labelH-qrSize)/2
		pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, opts, 0, "")

		textX := qrX + qrSize + 2
		pdf.SetXY(textX, y+labelH*0.15)
		pdf.SetFont("Arial", "B", 8)
		pdf.CellFormat(labelW-qrSize-4, 4, item.ProductCode, "", 0, "L", false, 0, "")

		pdf.SetXY(textX, y+labelH*0.42)
		pdf.SetFont("Arial", "", 7)
		pdf.CellFormat(labelW-qrSize-4, 4, truncate(item.Name, 28), "", 0, "L", false, 0, "")

		pdf.SetXY(textX, y+labelH*0.68)
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(labelW-qrSize-4, 4, fmt.Sprintf("%.2f %s", item.Price, item.Currency), "", 0, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "..."
}
