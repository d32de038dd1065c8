// Package display renders the memory test status screen onto a text console.
// Rows and columns are 0-based; the underlying console uses 1-based
// coordinates.
package display

// Rows of the status screen.
const (
	LineTitle      = 0
	LinePass       = 1
	LineTestBar    = 2
	LineTest       = 3
	LineRange      = 4
	LinePattern    = 5
	LineTime       = 5
	LineCPU        = 7
	LineStatus     = 8
	LineInfo       = 9
	LineHeader     = 12
	LineScroll     = 14
	LineMsg        = 22
	LastScrollLine = 23
	LineFooter     = 24
)

// Columns of the status screen.
const (
	Columns    = 80
	ColMid     = 30
	ColPattern = 41
	ColMsg     = 23
	ColTime    = 67
	ColBanner  = ColMsg - 8
	BarSize    = 39

	// PaintWidth is the number of columns recolored by Paint.
	PaintWidth = 76
)

// PassBanner is shown on the message line after a pass without errors.
const PassBanner = "** Pass complete, no errors, press Esc to exit **"

// Attr is a foreground/background color pair using the 16-color VGA
// palette indices.
type Attr struct {
	Fg, Bg uint8
}

// Attributes used by the status screen.
var (
	AttrNormal  = Attr{Fg: 7, Bg: 1}
	AttrAlert   = Attr{Fg: 7, Bg: 4}
	AttrWarning = Attr{Fg: 14, Bg: 0}
)
