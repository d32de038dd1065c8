package display

import (
	"strconv"

	"memtest/device/video/console"
)

// Surface is the set of drawing primitives used to render test progress and
// error reports.
type Surface interface {
	// Print writes s starting at (row, col), keeping the colors of the
	// cells it overwrites.
	Print(row, col int, s string)

	// Place writes a single char at (row, col).
	Place(row, col int, ch byte)

	// Hex writes v as a zero-padded hexadecimal number with the given
	// number of digits.
	Hex(row, col int, v uint64, digits int)

	// Dec writes v as a decimal number padded with blanks to width. The
	// number is right-justified if right is true.
	Dec(row, col int, v uint64, width int, right bool)

	// Paint recolors the first PaintWidth columns of row.
	Paint(row int, attr Attr)

	// Scroll advances the message line, scrolling the message area if
	// the line is already at the bottom.
	Scroll()

	// ClearScroll blanks the area below the header row and resets the
	// message line.
	ClearScroll()

	// MsgLine returns the row that the next message will be written to.
	MsgLine() int
}

// Screen implements Surface on top of a console device.
type Screen struct {
	cons    console.Device
	msgLine int
}

// NewScreen returns a Screen that draws onto cons.
func NewScreen(cons console.Device) *Screen {
	return &Screen{
		cons:    cons,
		msgLine: LineScroll - 1,
	}
}

// Clear blanks the whole console using the normal attribute.
func (s *Screen) Clear() {
	w, h := s.cons.Dimensions()
	s.cons.Fill(1, 1, w, h, AttrNormal.Fg, AttrNormal.Bg)
	s.msgLine = LineScroll - 1
}

// Print writes str starting at (row, col), keeping the colors of the cells
// it overwrites.
func (s *Screen) Print(row, col int, str string) {
	for i := 0; i < len(str); i++ {
		s.Place(row, col+i, str[i])
	}
}

// Place writes a single char at (row, col).
func (s *Screen) Place(row, col int, ch byte) {
	x, y := uint32(col+1), uint32(row+1)
	_, fg, bg := s.cons.Cell(x, y)
	s.cons.Write(ch, fg, bg, x, y)
}

// Hex writes v as a zero-padded lower-case hexadecimal number.
func (s *Screen) Hex(row, col int, v uint64, digits int) {
	str := strconv.FormatUint(v, 16)
	for len(str) < digits {
		str = "0" + str
	}
	s.Print(row, col, str)
}

// Dec writes v as a decimal number padded with blanks to width.
func (s *Screen) Dec(row, col int, v uint64, width int, right bool) {
	str := strconv.FormatUint(v, 10)
	for len(str) < width {
		if right {
			str = " " + str
		} else {
			str += " "
		}
	}
	s.Print(row, col, str)
}

// Paint recolors the first PaintWidth columns of row.
func (s *Screen) Paint(row int, attr Attr) {
	y := uint32(row + 1)
	for x := uint32(1); x <= PaintWidth; x++ {
		ch, _, _ := s.cons.Cell(x, y)
		s.cons.Write(ch, attr.Fg, attr.Bg, x, y)
	}
}

// Scroll advances the message line. Once the message line reaches the
// bottom of the message area, the area is scrolled up by one row and the
// freed row is blanked.
func (s *Screen) Scroll() {
	if s.msgLine < LastScrollLine {
		s.msgLine++
		return
	}

	s.cons.Scroll(console.ScrollDirUp, LineScroll+1, LastScrollLine+1, 1)
	w, _ := s.cons.Dimensions()
	s.cons.Fill(1, LastScrollLine+1, w, 1, AttrNormal.Fg, AttrNormal.Bg)
}

// ClearScroll blanks every row from the header row down to the bottom of
// the message area and resets the message line.
func (s *Screen) ClearScroll() {
	w, _ := s.cons.Dimensions()
	s.cons.Fill(1, LineHeader+1, w, LastScrollLine-LineHeader+1, AttrNormal.Fg, AttrNormal.Bg)
	s.msgLine = LineScroll - 1
}

// MsgLine returns the row that the next message will be written to.
func (s *Screen) MsgLine() int {
	return s.msgLine
}

// Row returns the text stored in row with trailing blanks removed.
func (s *Screen) Row(row int) string {
	w, _ := s.cons.Dimensions()
	buf := make([]byte, 0, w)
	for x := uint32(1); x <= w; x++ {
		ch, _, _ := s.cons.Cell(x, uint32(row+1))
		buf = append(buf, ch)
	}

	end := len(buf)
	for end > 0 && (buf[end-1] == ' ' || buf[end-1] == 0) {
		end--
	}
	return string(buf[:end])
}

// AttrAt returns the colors of the cell at (row, col).
func (s *Screen) AttrAt(row, col int) Attr {
	_, fg, bg := s.cons.Cell(uint32(col+1), uint32(row+1))
	return Attr{Fg: fg, Bg: bg}
}
