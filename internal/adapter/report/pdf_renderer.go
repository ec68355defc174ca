// Package report draws the one-page inventory report as a PDF.
package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"strconv"

	"github.com/go-pdf/fpdf"

	"github.com/rl1809/easy-inventory/internal/core/domain"
)

// Page geometry in points. Text coordinates are baselines.
const (
	pageWidth  = 595.0
	pageHeight = 842.0
	iconSize   = 50.0
	margin     = 20.0
	rowPitch   = 40.0

	colName     = 20.0
	colQuantity = 200.0
	colPrice    = 350.0
	colTotal    = 450.0

	summaryX      = 400.0
	totalItemsY   = 800.0
	totalPriceY   = 820.0
	dateLayout    = "02/01/2006 15:04"
	iconImageName = "icon"
	fontFamily    = "DejaVuSans"
)

// dejaVuSans covers Latin, Greek and Cyrillic so item and user names render
// as typed. It is subset into each PDF.
//
//go:embed fonts/DejaVuSans.ttf
var dejaVuSans []byte

// brandGreen matches the add/report buttons of the mobile app.
var brandGreen = color.RGBA{R: 0x4C, G: 0xAF, B: 0x50, A: 0xFF}

type PDFRenderer struct {
	icon []byte
}

// NewPDFRenderer uses the PNG at iconPath, or a generated icon when iconPath is empty.
func NewPDFRenderer(iconPath string) (*PDFRenderer, error) {
	if iconPath == "" {
		icon, err := defaultIcon()
		if err != nil {
			return nil, err
		}
		return &PDFRenderer{icon: icon}, nil
	}
	icon, err := os.ReadFile(iconPath)
	if err != nil {
		return nil, fmt.Errorf("read report icon: %w", err)
	}
	return &PDFRenderer{icon: icon}, nil
}

func (p *PDFRenderer) Render(w io.Writer, r domain.Report) error {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: pageWidth, Ht: pageHeight},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreationDate(r.GeneratedAt)
	pdf.SetTitle("Inventory Report", true)
	pdf.AddUTF8FontFromBytes(fontFamily, "", dejaVuSans)
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("load report font: %w", err)
	}
	pdf.AddPage()

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(iconImageName, opts, bytes.NewReader(p.icon))
	pdf.ImageOptions(iconImageName, pageWidth-iconSize-margin, margin, iconSize, iconSize, false, opts, 0, "")

	pdf.SetFont(fontFamily, "", 24)
	pdf.Text(margin, iconSize+40, "Inventory Report")

	pdf.SetFont(fontFamily, "", 14)
	pdf.Text(margin, iconSize+70, "Date: "+r.GeneratedAt.Format(dateLayout))
	pdf.Text(margin, iconSize+90, "Generated by: "+r.GeneratedBy)

	pdf.SetFont(fontFamily, "", 16)
	headerY := iconSize + 140
	pdf.Text(colName, headerY, "Item Name")
	pdf.Text(colQuantity, headerY, "Quantity")
	pdf.Text(colPrice, headerY, "Price")
	pdf.Text(colTotal, headerY, "Total")

	// Fixed pitch, no pagination: rows past the page edge are not visible.
	y := iconSize + 180
	for _, it := range r.Items {
		pdf.Text(colName, y, it.Name)
		pdf.Text(colQuantity, y, strconv.Itoa(it.Quantity))
		pdf.Text(colPrice, y, domain.FormatMoney(it.Price))
		pdf.Text(colTotal, y, domain.FormatMoney(it.LineTotal()))
		y += rowPitch
	}

	pdf.Text(summaryX, totalItemsY, "Total Items: "+strconv.Itoa(r.TotalItems))
	pdf.Text(summaryX, totalPriceY, "Total Price: "+domain.FormatMoney(r.TotalPrice))

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// defaultIcon draws a green tile with a white box outline.
func defaultIcon() ([]byte, error) {
	const size = 50
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := brandGreen
			inBox := x >= 12 && x < 38 && y >= 14 && y < 38
			onEdge := x == 12 || x == 37 || y == 14 || y == 37 || y == 22
			if inBox && onEdge {
				c = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode icon: %w", err)
	}
	return buf.Bytes(), nil
}
