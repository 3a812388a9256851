package gcode

import "strings"

// Parse parses every non-empty line of data.
func Parse(data string) ([]Block, error) {
	return ReadAll(NewParser(strings.NewReader(data)))
}

func MustParse(data string) []Block {
	b, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return b
}

// MustParseLine is ParseLine for a single-line literal; it panics on
// any Undefined word. Intended for tests and constant programs.
func MustParseLine(s string) Block {
	b := ParseLine(s)
	for _, w := range b {
		if w.W == Undefined {
			panic("gcode: invalid word " + w.Text)
		}
	}
	return b
}
