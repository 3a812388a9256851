package gcode

import (
	"errors"
	"strings"
)

// Block is a single line of gcode. Words are addressed by their index in
// the block; two words with the same letter and value are still distinct.
type Block []Word

func (b Block) Arg(w byte) (bool, float64) {
	for _, g := range b {
		if g.W == w {
			return true, g.Arg
		}
	}
	return false, 0
}

// Has returns true if any word uses the letter w.
func (b Block) Has(w byte) bool {
	ok, _ := b.Arg(w)
	return ok
}

// SetArg updates the first word with letter w, appending one if
// none exists.
func (b Block) SetArg(w byte, val float64) Block {
	for i, g := range b {
		if g.W == w {
			b[i].Arg = val
			return b
		}
	}
	return append(b, Word{W: w, Arg: val})
}

// Without returns a copy of b with every word using one of the letters removed.
func (b Block) Without(letters ...byte) Block {
	res := make(Block, 0, len(b))
outer:
	for _, g := range b {
		for _, l := range letters {
			if g.W == l {
				continue outer
			}
		}
		res = append(res, g)
	}
	return res
}

// Remove returns a copy of b without the word at index i.
func (b Block) Remove(i int) Block {
	res := make(Block, 0, len(b))
	res = append(res, b[:i]...)
	return append(res, b[i+1:]...)
}

func (b Block) Args() Block {
	res := make(Block, 0, len(b))
	for _, g := range b {
		if g.ModalGroup() == ModalGroupNone && !g.IsComment() && g.W != Undefined {
			res = append(res, g)
		}
	}
	return res
}
func (b Block) Clone() Block {
	c := make(Block, len(b))
	copy(c, b)
	return c
}

func (b Block) HasModal() bool {
	for _, g := range b {
		if g.ModalGroup() != ModalGroupNone {
			return true
		}
	}
	return false
}

// Motion returns the motion-group G code of the line, if any.
func (b Block) Motion() (bool, float64) {
	for _, g := range b {
		if g.W == 'G' && g.ModalGroup() == ModalGroupMotion {
			return true, g.Arg
		}
	}
	return false, 0
}

func (b Block) motionIs(codes ...float64) bool {
	ok, m := b.Motion()
	if !ok {
		return false
	}
	for _, c := range codes {
		if m == c {
			return true
		}
	}
	return false
}

// IsMove returns true if the line moves the tool.
func (b Block) IsMove() bool {
	if b.motionIs(0, 1, 2, 3, 5, 5.1) {
		return true
	}
	hasMotion, _ := b.Motion()
	return !hasMotion && (b.Has('X') || b.Has('Y') || b.Has('Z'))
}

func (b Block) IsArc() bool    { return b.motionIs(2, 3) }
func (b Block) IsSpline() bool { return b.motionIs(5, 5.1) }
func (b Block) IsDrill() bool  { return b.motionIs(73, 81, 82, 83, 84, 85, 86, 87, 88, 89) }

// IsPoint returns true if the line has both X and Y.
func (b Block) IsPoint() bool { return b.Has('X') && b.Has('Y') }

// IsEmpty returns true if the line has no words that would be sent
// to a controller.
func (b Block) IsEmpty() bool {
	for _, g := range b {
		if !g.IsComment() {
			return false
		}
	}
	return true
}

func (b Block) Validate() error {
	var checkWord [256]bool
	var checkModal [256]bool

	var m ModalGroup
	for _, g := range b {
		if g.IsComment() {
			continue
		}
		if !g.IsValid() {
			return errors.New("invalid word in block")
		}
		if g.W != 'G' && checkWord[g.W] {
			return errors.New("word was repeated in a block")
		}
		checkWord[g.W] = true
		m = g.ModalGroup()
		if m != ModalGroupNone && checkModal[m] {
			return errors.New("multiple words from same modal group")
		}
		checkModal[m] = true
	}

	return nil
}

func (b Block) String() string {
	var sb strings.Builder
	for _, g := range b {
		sb.WriteString(g.String())
	}
	return sb.String()
}
