package cardsheet

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/mhm-assoc/memberpass/internal/credential"
	"github.com/mhm-assoc/memberpass/internal/models"
)

// SheetConfig holds the layout for a printable card sheet.
type SheetConfig struct {
	Cols       int     `json:"cols"`
	Rows       int     `json:"rows"`
	MarginTop  float64 `json:"marginTop"`
	MarginLeft float64 `json:"marginLeft"`
	GapX       float64 `json:"gapX"`
	GapY       float64 `json:"gapY"`
}

// DefaultSheet fits eight standard cards on an A4 page.
func DefaultSheet() SheetConfig {
	return SheetConfig{Cols: 2, Rows: 4, MarginTop: 10, MarginLeft: 10, GapX: 4, GapY: 4}
}

// Generate renders an A4 PDF sheet of membership cards, one per
// member, each with its signed QR code, name, number and validity.
// Members without an issued card are skipped.
func Generate(members []models.Member, encoder *credential.Encoder, validity string, cfg SheetConfig) ([]byte, error) {
	if cfg.Cols <= 0 || cfg.Rows <= 0 {
		cfg = DefaultSheet()
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 10)

	// A4 dimensions
	pageWidth, pageHeight := 210.0, 297.0

	totalGapX := float64(cfg.Cols-1) * cfg.GapX
	totalGapY := float64(cfg.Rows-1) * cfg.GapY
	availW := pageWidth - (cfg.MarginLeft * 2)
	availH := pageHeight - (cfg.MarginTop * 2)
	cardW := (availW - totalGapX) / float64(cfg.Cols)
	cardH := (availH - totalGapY) / float64(cfg.Rows)

	cardsPerPage := cfg.Cols * cfg.Rows
	placed := 0

	for i := range members {
		member := &members[i]
		if member.Number() == "" {
			continue
		}

		payload, err := encoder.Encode(member, validity)
		if err != nil {
			continue
		}
		_, png, err := encoder.Render(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to render card for %s: %w", member.Number(), err)
		}

		if placed%cardsPerPage == 0 {
			pdf.AddPage()
		}
		indexOnPage := placed % cardsPerPage
		col := indexOnPage % cfg.Cols
		row := indexOnPage / cfg.Cols

		x := cfg.MarginLeft + float64(col)*(cardW+cfg.GapX)
		y := cfg.MarginTop + float64(row)*(cardH+cfg.GapY)

		imgName := fmt.Sprintf("qr_%d", placed)
		imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
		_ = pdf.RegisterImageOptionsReader(imgName, imgOptions, bytes.NewReader(png))

		qrSize := cardH * 0.6
		if qrSize > cardW {
			qrSize = cardW * 0.9
		}
		qrX := x + (cardW-qrSize)/2
		qrY := y + 4

		pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, imgOptions, 0, "")

		pdf.SetXY(x, y+1)
		pdf.SetFontSize(7)
		pdf.CellFormat(cardW, 3, payload.Association+" "+payload.Validity, "", 0, "R", false, 0, "")

		pdf.SetXY(x, y+cardH-11)
		pdf.SetFontSize(9)
		pdf.CellFormat(cardW, 4, payload.Name, "", 0, "C", false, 0, "")

		pdf.SetXY(x, y+cardH-6)
		pdf.SetFontSize(8)
		pdf.CellFormat(cardW, 4, payload.MemberID, "", 0, "C", false, 0, "")

		pdf.Rect(x, y, cardW, cardH, "D")
		placed++
	}

	if placed == 0 {
		return nil, fmt.Errorf("no members with an assigned member number to print")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
