package console

import (
	"bufio"
	"image/color"
	"io"
	"strconv"
	"sync"

	"golang.org/x/term"

	"memtest/kernel"
)

var (
	errNotATerminal = &kernel.Error{Module: "term_console", Message: "output is not a terminal"}
	errTermTooSmall = &kernel.Error{Module: "term_console", Message: "terminal is smaller than the console"}

	// vgaToANSI maps the low three bits of a VGA color index to the
	// matching ANSI color number.
	vgaToANSI = [8]int{0, 4, 2, 6, 1, 5, 3, 7}

	isTerminalFn = term.IsTerminal
	getSizeFn    = term.GetSize
)

// TermConsole is a VgaTextConsole that mirrors its framebuffer onto an ANSI
// terminal. All methods are safe for concurrent use; output is only sent to
// the terminal when Flush is called.
type TermConsole struct {
	mu    sync.Mutex
	vga   *VgaTextConsole
	fd    int
	out   *bufio.Writer
	dirty bool
}

// NewTermConsole creates a console with the specified dimensions that
// renders onto the terminal referenced by fd through out.
func NewTermConsole(columns, rows uint32, fd int, out io.Writer) *TermConsole {
	return &TermConsole{
		vga: NewVgaTextConsole(columns, rows),
		fd:  fd,
		out: bufio.NewWriterSize(out, int(columns*rows*12)),
	}
}

// Dimensions returns the console width and height in characters.
func (cons *TermConsole) Dimensions() (uint32, uint32) {
	return cons.vga.Dimensions()
}

// DefaultColors returns the default foreground and background colors.
func (cons *TermConsole) DefaultColors() (fg, bg uint8) {
	return cons.vga.DefaultColors()
}

// Fill sets the contents of the specified rectangular region to the
// requested color.
func (cons *TermConsole) Fill(x, y, width, height uint32, fg, bg uint8) {
	cons.mu.Lock()
	cons.vga.Fill(x, y, width, height, fg, bg)
	cons.dirty = true
	cons.mu.Unlock()
}

// Scroll the rows between top and bottom to the specified direction.
func (cons *TermConsole) Scroll(dir ScrollDir, top, bottom, lines uint32) {
	cons.mu.Lock()
	cons.vga.Scroll(dir, top, bottom, lines)
	cons.dirty = true
	cons.mu.Unlock()
}

// Write a char to the specified location.
func (cons *TermConsole) Write(ch byte, fg, bg uint8, x, y uint32) {
	cons.mu.Lock()
	cons.vga.Write(ch, fg, bg, x, y)
	cons.dirty = true
	cons.mu.Unlock()
}

// Cell returns the char and colors stored at the specified location.
func (cons *TermConsole) Cell(x, y uint32) (byte, uint8, uint8) {
	cons.mu.Lock()
	defer cons.mu.Unlock()
	return cons.vga.Cell(x, y)
}

// Palette returns the active color palette for this console.
func (cons *TermConsole) Palette() color.Palette {
	return cons.vga.Palette()
}

// SetPaletteColor updates the color definition for the specified palette
// index. ANSI terminals ignore palette changes.
func (cons *TermConsole) SetPaletteColor(index uint8, rgba color.RGBA) {
	cons.mu.Lock()
	cons.vga.SetPaletteColor(index, rgba)
	cons.mu.Unlock()
}

// Dump writes the console contents to w as plain text.
func (cons *TermConsole) Dump(w io.Writer) error {
	cons.mu.Lock()
	defer cons.mu.Unlock()
	return cons.vga.Dump(w)
}

// Flush redraws the terminal if the console contents changed since the last
// call to Flush.
func (cons *TermConsole) Flush() error {
	cons.mu.Lock()
	defer cons.mu.Unlock()

	if !cons.dirty {
		return nil
	}
	cons.dirty = false

	cons.out.WriteString("\x1b[H")

	lastAttr := -1
	for y := uint32(1); y <= cons.vga.height; y++ {
		if y > 1 {
			cons.out.WriteString("\r\n")
		}

		for x := uint32(1); x <= cons.vga.width; x++ {
			ch, fg, bg := cons.vga.Cell(x, y)
			if attr := int(bg)<<4 | int(fg); attr != lastAttr {
				writeSGR(cons.out, fg, bg)
				lastAttr = attr
			}

			if ch < 0x20 || ch > 0x7e {
				ch = ' '
			}
			cons.out.WriteByte(ch)
		}
	}
	cons.out.WriteString("\x1b[0m")

	return cons.out.Flush()
}

func writeSGR(w *bufio.Writer, fg, bg uint8) {
	fgBase, bgBase := 30, 40
	if fg&0x8 != 0 {
		fgBase = 90
	}
	if bg&0x8 != 0 {
		bgBase = 100
	}

	w.WriteString("\x1b[")
	w.WriteString(strconv.Itoa(fgBase + vgaToANSI[fg&0x7]))
	w.WriteByte(';')
	w.WriteString(strconv.Itoa(bgBase + vgaToANSI[bg&0x7]))
	w.WriteByte('m')
}

// Close restores the terminal to the state it was in before DriverInit.
func (cons *TermConsole) Close() error {
	cons.mu.Lock()
	defer cons.mu.Unlock()

	cons.out.WriteString("\x1b[0m\x1b[?25h\x1b[?1049l")
	return cons.out.Flush()
}

// DriverName returns the name of this driver.
func (cons *TermConsole) DriverName() string {
	return "term_console"
}

// DriverVersion returns the version of this driver.
func (cons *TermConsole) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit verifies that the terminal can fit the console and switches it
// to the alternate screen with the cursor hidden.
func (cons *TermConsole) DriverInit(w io.Writer) *kernel.Error {
	if !isTerminalFn(cons.fd) {
		return errNotATerminal
	}

	if cols, rows, err := getSizeFn(cons.fd); err == nil && (uint32(cols) < cons.vga.width || uint32(rows) < cons.vga.height) {
		return errTermTooSmall
	}

	if err := cons.vga.DriverInit(w); err != nil {
		return err
	}

	cons.mu.Lock()
	cons.out.WriteString("\x1b[?1049h\x1b[?25l\x1b[2J")
	cons.dirty = true
	cons.mu.Unlock()

	return nil
}
