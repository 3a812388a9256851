package document

import (
	"github.com/gogpu/gg"
	"github.com/mastercactapus/engrave/engrave"
	"github.com/mastercactapus/engrave/gcode"
)

// Program is literal gcode placed in the document. Lines are emitted as
// written; G0 moves with X and Y still get safe transits.
type Program struct {
	Label string
	Props engrave.Properties
	Lines []gcode.Block
}

// NewProgram parses src. Unparseable words are kept as undefined words
// and never sent.
func NewProgram(label, src string) (*Program, error) {
	lines, err := gcode.Parse(src)
	if err != nil {
		return nil, err
	}
	return &Program{Label: label, Props: engrave.New(), Lines: lines}, nil
}

func (p *Program) Name() string                   { return p.Label }
func (p *Program) Properties() engrave.Properties { return p.Props }

func (p *Program) Blocks(float64) []gcode.Block {
	res := make([]gcode.Block, 0, len(p.Lines))
	for _, b := range p.Lines {
		res = append(res, b.Clone())
	}
	return res
}

func (p *Program) FirstPoint() (gg.Point, bool) {
	for _, b := range p.Lines {
		if b.IsPoint() {
			return blockPoint(b), true
		}
	}
	return gg.Point{}, false
}

func (p *Program) LastPoint() (gg.Point, bool) {
	for i := len(p.Lines) - 1; i >= 0; i-- {
		if p.Lines[i].IsPoint() {
			return blockPoint(p.Lines[i]), true
		}
	}
	return gg.Point{}, false
}

func blockPoint(b gcode.Block) gg.Point {
	_, x := b.Arg('X')
	_, y := b.Arg('Y')
	return gg.Pt(x, y)
}
