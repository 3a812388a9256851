package gcode

import (
	"math"
	"strconv"
	"strings"
)

// Special word letters that do not carry a numeric value.
const (
	// Undefined marks a token the parser could not understand. Text
	// holds the raw token.
	Undefined byte = 0
	Comment   byte = '('
	Percent   byte = '%'
)

// Word is a single letter+value pair of a line. Comment words
// carry Text instead of Arg.
type Word struct {
	W    byte
	Arg  float64
	Text string
}

func (w Word) IsAxis() bool {
	switch w.W {
	case 'X', 'Y', 'Z', 'A', 'B', 'C', 'E':
		return true
	}
	return false
}

func (w Word) IsValid() bool {
	return w.W >= 'A' && w.W <= 'Z' && !math.IsNaN(w.Arg)
}

// IsComment returns true for comment and percent marker words.
func (w Word) IsComment() bool {
	return w.W == Comment || w.W == Percent
}

// Is returns true if w is the letter l with value arg.
func (w Word) Is(l byte, arg float64) bool {
	return w.W == l && w.Arg == arg
}

func formatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

func (w Word) String() string {
	switch w.W {
	case Undefined:
		return w.Text
	case Comment:
		return "(" + w.Text + ")"
	case Percent:
		return "%"
	}
	return string(w.W) + formatFloat(w.Arg, 3)
}
