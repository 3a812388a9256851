// Package document is the tree of shapes a job is rendered from. Groups own
// an ordered list of children; leaves are elements with geometry. Every
// node carries its own engrave.Properties, merged top-down when rendering.
package document

import (
	"github.com/gogpu/gg"
	"github.com/mastercactapus/engrave/engrave"
	"github.com/mastercactapus/engrave/gcode"
)

// Node is a Group or an Element.
type Node interface {
	Name() string
	Properties() engrave.Properties
}

// Element is a leaf node.
type Element interface {
	Node

	// Blocks returns the element's lines with curves flattened to segments
	// no further than tol from the true shape. Moves carry absolute X and
	// Y only; G0 marks a transit, G1 a cut.
	Blocks(tol float64) []gcode.Block

	// FirstPoint and LastPoint are the XY where cutting starts and ends.
	FirstPoint() (gg.Point, bool)
	LastPoint() (gg.Point, bool)
}

// Group is an ordered list of children sharing properties.
type Group struct {
	Label    string
	Props    engrave.Properties
	Children []Node
}

// NewGroup returns an enabled group with unset properties.
func NewGroup(label string, children ...Node) *Group {
	return &Group{Label: label, Props: engrave.New(), Children: children}
}

func (g *Group) Name() string                   { return g.Label }
func (g *Group) Properties() engrave.Properties { return g.Props }

// Add appends children.
func (g *Group) Add(n ...Node) { g.Children = append(g.Children, n...) }

// Elements returns the number of leaves below g.
func (g *Group) Elements() int {
	var n int
	for _, c := range g.Children {
		switch c := c.(type) {
		case *Group:
			n += c.Elements()
		case Element:
			n++
		}
	}
	return n
}
