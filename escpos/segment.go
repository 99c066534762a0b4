package escpos

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

type Kind int

const (
	KindText Kind = iota
	KindControl
	KindBarcode
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindControl:
		return "control"
	case KindBarcode:
		return "barcode"
	}
	return "unknown"
}

// Segment is one self-contained piece of the output stream. Text segments hold
// printable ISO-8859-1 bytes; control and barcode segments hold command bytes only.
type Segment struct {
	Kind Kind
	Data []byte
}

func control(b ...byte) Segment {
	return Segment{Kind: KindControl, Data: b}
}

// Text encodes s for the printer code page. Runes outside ISO-8859-1 print as '?'.
func Text(s string) Segment {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := charmap.ISO8859_1.EncodeRune(r); ok {
			out = append(out, b)
		} else {
			out = append(out, '?')
		}
	}
	return Segment{Kind: KindText, Data: out}
}

// Line is Text followed by a line feed.
func Line(s string) Segment {
	seg := Text(s)
	seg.Data = append(seg.Data, lf)
	return seg
}

// Rule is a full-width separator line.
func Rule(ch byte, columns int) Segment {
	return Line(strings.Repeat(string(ch), columns))
}

// Join concatenates segments in order.
func Join(segs []Segment) []byte {
	n := 0
	for _, s := range segs {
		n += len(s.Data)
	}
	var buf bytes.Buffer
	buf.Grow(n)
	for _, s := range segs {
		buf.Write(s.Data)
	}
	return buf.Bytes()
}
