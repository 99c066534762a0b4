// Package escpos renders sales as ESC/POS byte streams for 58mm and 80mm thermal printers.
package escpos

const (
	esc byte = 0x1B
	gs  byte = 0x1D
	lf  byte = '\n'
)

type Alignment byte

const (
	AlignLeft   Alignment = 0
	AlignCenter Alignment = 1
	AlignRight  Alignment = 2
)

// GS ! character size modes.
const (
	SizeNormal       byte = 0x00
	SizeDoubleHeight byte = 0x01
	SizeDoubleWidth  byte = 0x10
	SizeDouble       byte = 0x11
)

// Init resets the printer to its power-on state (ESC @).
func Init() Segment { return control(esc, '@') }

// Align sets justification for the following lines (ESC a n).
func Align(a Alignment) Segment { return control(esc, 'a', byte(a)) }

// Bold toggles emphasized mode (ESC E n).
func Bold(on bool) Segment {
	if on {
		return control(esc, 'E', 1)
	}
	return control(esc, 'E', 0)
}

// Size selects character size (GS ! n).
func Size(mode byte) Segment { return control(gs, '!', mode) }

// Feed prints the buffer and feeds n lines (ESC d n).
func Feed(n byte) Segment { return control(esc, 'd', n) }

// Cut performs a full cut (GS V 0).
func Cut() Segment { return control(gs, 'V', 0) }
