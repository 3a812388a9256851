package gcode

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

type Parser struct{ br *bufio.Reader }

func NewParser(r io.Reader) *Parser {
	if br, ok := r.(*bufio.Reader); ok {
		return &Parser{br: br}
	}

	return &Parser{br: bufio.NewReader(r)}
}

// Read returns the next non-empty line. Only I/O errors are returned;
// malformed input produces Undefined words.
func (p *Parser) Read() (Block, error) {
	for {
		s, err := p.br.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		if err != nil {
			return nil, err
		}

		b := ParseLine(s)
		if len(b) == 0 {
			continue
		}
		return b, nil
	}
}

// ParseLine parses a single line of gcode. It never fails: anything that
// cannot be understood becomes an Undefined word holding the raw text.
func ParseLine(s string) Block {
	s = strings.TrimSpace(s)
	var res Block
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == ';':
			res = append(res, Word{W: Comment, Text: strings.TrimSpace(s[i+1:])})
			i = len(s)
		case c == '(':
			end := strings.IndexByte(s[i:], ')')
			if end == -1 {
				res = append(res, Word{W: Undefined, Text: s[i:]})
				i = len(s)
				continue
			}
			res = append(res, Word{W: Comment, Text: s[i+1 : i+end]})
			i += end + 1
		case c == '%':
			res = append(res, Word{W: Percent})
			i++
		case isLetter(c):
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
				j++
			}
			start := j
			for j < len(s) && isNumberChar(s[j]) {
				j++
			}
			v, err := strconv.ParseFloat(s[start:j], 64)
			if err != nil {
				res = append(res, Word{W: Undefined, Text: s[i:j]})
				i = j
				continue
			}
			res = append(res, Word{W: upper(c), Arg: v})
			i = j
		default:
			j := i + 1
			for j < len(s) && !isLetter(s[j]) && s[j] != ' ' && s[j] != '(' && s[j] != ';' {
				j++
			}
			res = append(res, Word{W: Undefined, Text: s[i:j]})
			i = j
		}
	}
	return res
}

func isLetter(c byte) bool { return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') }

func isNumberChar(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+'
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}
