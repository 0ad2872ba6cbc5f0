package export

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// A4 landscape page size in millimetres.
const (
	PageWidthMM  = 297.0
	PageHeightMM = 210.0
)

const imageName = "dashboard"

// PageOffsets returns the vertical offset of the capture on each page. The
// capture is scaled to the page width; every following page shifts it up by
// one page height until less than nothing is left to show.
func PageOffsets(width, height int) []float64 {
	if width <= 0 || height <= 0 {
		return nil
	}
	imgHeight := float64(height) * PageWidthMM / float64(width)
	offsets := []float64{0}
	heightLeft := imgHeight - PageHeightMM
	for heightLeft >= 0 {
		offsets = append(offsets, heightLeft-imgHeight)
		heightLeft -= PageHeightMM
	}
	return offsets
}

// Paginate writes img as an A4 landscape PDF to w and returns the page count.
func Paginate(img image.Image, w io.Writer) (int, error) {
	if img == nil {
		return 0, errors.New("export: nothing to paginate")
	}
	bounds := img.Bounds()
	offsets := PageOffsets(bounds.Dx(), bounds.Dy())
	if len(offsets) == 0 {
		return 0, errors.New("export: empty capture")
	}

	var raw bytes.Buffer
	if err := png.Encode(&raw, img); err != nil {
		return 0, err
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetCreationDate(time.Unix(0, 0).UTC())
	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(imageName, opt, &raw)
	if err := pdf.Error(); err != nil {
		return 0, err
	}

	imgHeight := float64(bounds.Dy()) * PageWidthMM / float64(bounds.Dx())
	for _, y := range offsets {
		pdf.AddPage()
		pdf.ImageOptions(imageName, 0, y, PageWidthMM, imgHeight, false, opt, 0, "")
	}
	if err := pdf.Output(w); err != nil {
		return 0, err
	}
	return len(offsets), nil
}

// Filename names an export taken at t.
func Filename(t time.Time) string {
	return "HR_Analytics_Dashboard_" + t.Format("2006-01-02") + "_" + t.Format("15-04-05") + ".pdf"
}
