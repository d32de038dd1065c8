package report

import (
	"fmt"
	"io"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"memtest/kernel/memtest/errinfo"
)

const (
	mapWidth  = 704
	mapHeight = 256
	mapMargin = 32

	// barWidth is the width of a histogram bar in pixels.
	barWidth = (mapWidth - 2*mapMargin) / errinfo.HistogramBuckets
)

// WriteFailureMap renders the failure histogram of s as a PNG image. Each
// bar covers an equally sized region of physical memory; its height is
// proportional to the number of failures found in that region.
func WriteFailureMap(w io.Writer, s *Summary) error {
	dc := gg.NewContext(mapWidth, mapHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	var peak uint64
	for _, v := range s.Histogram {
		if v > peak {
			peak = v
		}
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(
		fmt.Sprintf("errors: %d  passes: %d  confidence: %d", s.Errors.Total, s.Passes, s.Errors.Confidence),
		mapWidth/2, mapMargin/2, 0.5, 0.5,
	)

	top, bottom := float64(mapMargin), float64(mapHeight-mapMargin)
	for i, v := range s.Histogram {
		x := float64(mapMargin + i*barWidth)

		// Regions without failures are drawn as a thin green strip.
		if v == 0 {
			dc.SetRGB(0.2, 0.7, 0.2)
			dc.DrawRectangle(x, bottom-2, barWidth-1, 2)
			dc.Fill()
			continue
		}

		h := (bottom - top) * float64(v) / float64(peak)
		dc.SetRGB(0.85, 0.1, 0.1)
		dc.DrawRectangle(x, bottom-h, barWidth-1, h)
		dc.Fill()
	}

	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawLine(mapMargin, bottom, mapWidth-mapMargin, bottom)
	dc.Stroke()

	if len(s.Histogram) != 0 {
		dc.DrawStringAnchored(hex(s.bucketAddr(0)), mapMargin, bottom+mapMargin/2, 0, 0.5)
		dc.DrawStringAnchored(hex(s.bucketAddr(len(s.Histogram))), mapWidth-mapMargin, bottom+mapMargin/2, 1, 0.5)
	}

	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encoding failure map: %w", err)
	}
	return nil
}
