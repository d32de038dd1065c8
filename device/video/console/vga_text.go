package console

import (
	"bytes"
	"image/color"
	"io"

	"memtest/kernel"
)

var errBadDimensions = &kernel.Error{Module: "vga_text_console", Message: "console dimensions must be non-zero"}

// VgaTextConsole implements an EGA-compatible 16-color text console. Each
// cell is stored as a uint16 holding the char in the low byte and the
// background and foreground color indices in the high byte.
type VgaTextConsole struct {
	width  uint32
	height uint32

	fb []uint16

	palette   color.Palette
	defaultFg uint8
	defaultBg uint8
	clearChar uint16
}

// NewVgaTextConsole creates a new vga text console with the specified
// dimensions. The framebuffer is allocated by DriverInit.
func NewVgaTextConsole(columns, rows uint32) *VgaTextConsole {
	return &VgaTextConsole{
		width:     columns,
		height:    rows,
		clearChar: uint16(' '),
		palette: color.Palette{
			color.RGBA{R: 0, G: 0, B: 0, A: 255},       /* black */
			color.RGBA{R: 0, G: 0, B: 170, A: 255},     /* blue */
			color.RGBA{R: 0, G: 170, B: 0, A: 255},     /* green */
			color.RGBA{R: 0, G: 170, B: 170, A: 255},   /* cyan */
			color.RGBA{R: 170, G: 0, B: 0, A: 255},     /* red */
			color.RGBA{R: 170, G: 0, B: 170, A: 255},   /* magenta */
			color.RGBA{R: 170, G: 85, B: 0, A: 255},    /* brown */
			color.RGBA{R: 170, G: 170, B: 170, A: 255}, /* light gray */
			color.RGBA{R: 85, G: 85, B: 85, A: 255},    /* dark gray */
			color.RGBA{R: 85, G: 85, B: 255, A: 255},   /* light blue */
			color.RGBA{R: 85, G: 255, B: 85, A: 255},   /* light green */
			color.RGBA{R: 85, G: 255, B: 255, A: 255},  /* light cyan */
			color.RGBA{R: 255, G: 85, B: 85, A: 255},   /* light red */
			color.RGBA{R: 255, G: 85, B: 255, A: 255},  /* light magenta */
			color.RGBA{R: 255, G: 255, B: 85, A: 255},  /* yellow */
			color.RGBA{R: 255, G: 255, B: 255, A: 255}, /* white */
		},
		defaultFg: 7,
		defaultBg: 1,
	}
}

// Dimensions returns the console width and height in characters.
func (cons *VgaTextConsole) Dimensions() (uint32, uint32) {
	return cons.width, cons.height
}

// DefaultColors returns the default foreground and background colors
// used by this console.
func (cons *VgaTextConsole) DefaultColors() (fg uint8, bg uint8) {
	return cons.defaultFg, cons.defaultBg
}

// Fill sets the contents of the specified rectangular region to the requested
// color. Both x and y coordinates are 1-based.
func (cons *VgaTextConsole) Fill(x, y, width, height uint32, fg, bg uint8) {
	var (
		clr                  = cell(cons.clearChar, fg, bg)
		rowOffset, colOffset uint32
	)

	// clip rectangle
	if x == 0 {
		x = 1
	} else if x >= cons.width {
		x = cons.width
	}

	if y == 0 {
		y = 1
	} else if y >= cons.height {
		y = cons.height
	}

	if x+width-1 > cons.width {
		width = cons.width - x + 1
	}

	if y+height-1 > cons.height {
		height = cons.height - y + 1
	}

	rowOffset = ((y - 1) * cons.width) + (x - 1)
	for ; height > 0; height, rowOffset = height-1, rowOffset+cons.width {
		for colOffset = rowOffset; colOffset < rowOffset+width; colOffset++ {
			cons.fb[colOffset] = clr
		}
	}
}

// Scroll the rows between top and bottom (inclusive, 1-based) to the
// specified direction.
func (cons *VgaTextConsole) Scroll(dir ScrollDir, top, bottom, lines uint32) {
	if top < 1 {
		top = 1
	}
	if bottom > cons.height {
		bottom = cons.height
	}
	if top > bottom || lines == 0 || lines > bottom-top+1 {
		return
	}

	var (
		first  = (top - 1) * cons.width
		last   = bottom * cons.width
		offset = lines * cons.width
	)

	switch dir {
	case ScrollDirUp:
		copy(cons.fb[first:last-offset], cons.fb[first+offset:last])
	case ScrollDirDown:
		copy(cons.fb[first+offset:last], cons.fb[first:last-offset])
	}
}

// Write a char to the specified location. If fg or bg exceed the supported
// colors for this console, they will be set to their default value. Both x and
// y coordinates are 1-based
func (cons *VgaTextConsole) Write(ch byte, fg, bg uint8, x, y uint32) {
	if x < 1 || x > cons.width || y < 1 || y > cons.height {
		return
	}

	maxColorIndex := uint8(len(cons.palette) - 1)
	if fg > maxColorIndex {
		fg = cons.defaultFg
	}
	if bg > maxColorIndex {
		bg = cons.defaultBg
	}

	cons.fb[((y-1)*cons.width)+(x-1)] = cell(uint16(ch), fg, bg)
}

// Cell returns the char and colors stored at the specified location. Both x
// and y coordinates are 1-based.
func (cons *VgaTextConsole) Cell(x, y uint32) (ch byte, fg, bg uint8) {
	if x < 1 || x > cons.width || y < 1 || y > cons.height {
		return 0, 0, 0
	}

	v := cons.fb[((y-1)*cons.width)+(x-1)]
	return byte(v), uint8(v>>8) & 0xf, uint8(v >> 12)
}

// Palette returns the active color palette for this console.
func (cons *VgaTextConsole) Palette() color.Palette {
	return cons.palette
}

// SetPaletteColor updates the color definition for the specified palette index.
// Passing a color index greater than the number of supported colors should be
// a no-op.
func (cons *VgaTextConsole) SetPaletteColor(index uint8, rgba color.RGBA) {
	if index >= uint8(len(cons.palette)) {
		return
	}

	cons.palette[index] = rgba
}

// Dump writes the console contents to w as plain text, one line per row
// with trailing blanks removed.
func (cons *VgaTextConsole) Dump(w io.Writer) error {
	line := make([]byte, cons.width)
	for y := uint32(0); y < cons.height; y++ {
		for x := uint32(0); x < cons.width; x++ {
			line[x] = byte(cons.fb[y*cons.width+x])
		}

		if _, err := w.Write(append(bytes.TrimRight(line, " \x00"), '\n')); err != nil {
			return err
		}
	}

	return nil
}

// DriverName returns the name of this driver.
func (cons *VgaTextConsole) DriverName() string {
	return "vga_text_console"
}

// DriverVersion returns the version of this driver.
func (cons *VgaTextConsole) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit allocates the framebuffer and clears it using the default
// colors.
func (cons *VgaTextConsole) DriverInit(_ io.Writer) *kernel.Error {
	if cons.width == 0 || cons.height == 0 {
		return errBadDimensions
	}

	cons.fb = make([]uint16, cons.width*cons.height)
	cons.Fill(1, 1, cons.width, cons.height, cons.defaultFg, cons.defaultBg)
	return nil
}

func cell(ch uint16, fg, bg uint8) uint16 {
	return (((uint16(bg) << 4) | uint16(fg)) << 8) | ch
}
