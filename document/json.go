package document

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gogpu/gg"
	"github.com/mastercactapus/engrave/engrave"
	"github.com/mastercactapus/engrave/gcode"
)

// The JSON form of a document:
//
//	{"label": "job", "props": {"feed": 600, "zStart": 0, "zEnd": -1, "passDepth": 0.5},
//	 "children": [
//	   {"type": "path", "label": "edge", "path": [{"M": [0, 0]}, {"L": [10, 0]}, {"Z": []}]},
//	   {"type": "rect", "x": 0, "y": 0, "w": 10, "h": 5},
//	   {"type": "circle", "x": 5, "y": 5, "r": 2},
//	   {"type": "drill", "x": 1, "y": 1, "gcode": "G83 Z-3 R1 Q1"},
//	   {"type": "pocket", "inlayDepth": 0.2, "path": [...]},
//	   {"type": "gcode", "gcode": "G0 X1 Y1\nG1 X2"},
//	   {"type": "group", "children": [...]}
//	 ]}
//
// Path segments are M, L, Q (control, point), C (two controls, point) and Z.
type nodeJSON struct {
	Type     string      `json:"type"`
	Label    string      `json:"label"`
	Props    *propsJSON  `json:"props"`
	Children []*nodeJSON `json:"children"`

	Path  []map[string][]float64 `json:"path"`
	X     float64                `json:"x"`
	Y     float64                `json:"y"`
	W     float64                `json:"w"`
	H     float64                `json:"h"`
	R     float64                `json:"r"`
	GCode string                 `json:"gcode"`

	InlayDepth float64 `json:"inlayDepth"`
}

type propsJSON struct {
	Enabled   *bool    `json:"enabled"`
	AllAtOnce bool     `json:"allAtOnce"`
	Feed      *float64 `json:"feed"`
	Power     *int     `json:"power"`
	PassCount int      `json:"passCount"`
	ZStart    *float64 `json:"zStart"`
	ZEnd      *float64 `json:"zEnd"`
	PassDepth *float64 `json:"passDepth"`
}

func (p *propsJSON) properties() engrave.Properties {
	res := engrave.New()
	if p == nil {
		return res
	}
	if p.Enabled != nil {
		res.Enabled = *p.Enabled
	}
	res.AllAtOnce = p.AllAtOnce
	if p.Feed != nil {
		res.Feed = *p.Feed
	}
	if p.Power != nil {
		res.Power = *p.Power
	}
	res.PassCount = p.PassCount
	if p.ZStart != nil {
		res.ZStart = *p.ZStart
	}
	if p.ZEnd != nil {
		res.ZEnd = *p.ZEnd
	}
	if p.PassDepth != nil {
		res.PassDepth = *p.PassDepth
	}
	return res
}

// Decode reads a JSON document. The top level object is always a group.
func Decode(r io.Reader) (*Group, error) {
	var root nodeJSON
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	root.Type = "group"
	n, err := root.node()
	if err != nil {
		return nil, err
	}
	return n.(*Group), nil
}

func (n *nodeJSON) node() (Node, error) {
	props := n.Props.properties()
	switch n.Type {
	case "group", "":
		g := &Group{Label: n.Label, Props: props}
		for i, c := range n.Children {
			if c == nil {
				continue
			}
			child, err := c.node()
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", n.Label, i, err)
			}
			g.Children = append(g.Children, child)
		}
		return g, nil
	case "path":
		p, err := buildPath(n.Path)
		if err != nil {
			return nil, err
		}
		return &Path{Label: n.Label, Props: props, Path: p}, nil
	case "rect":
		p := Rect(n.Label, n.X, n.Y, n.W, n.H)
		p.Props = props
		return p, nil
	case "circle":
		p := Circle(n.Label, n.X, n.Y, n.R)
		p.Props = props
		return p, nil
	case "pocket":
		p, err := buildPath(n.Path)
		if err != nil {
			return nil, err
		}
		return &Pocket{Label: n.Label, Props: props, Outline: p, InlayDepth: n.InlayDepth}, nil
	case "drill":
		d := NewDrillPoint(n.Label, n.X, n.Y)
		d.Props = props
		if n.GCode != "" {
			d.Cycle = gcode.ParseLine(n.GCode)
			if !d.Cycle.IsDrill() {
				return nil, fmt.Errorf("drill %q: not a drill cycle: %s", n.Label, n.GCode)
			}
		}
		return d, nil
	case "gcode":
		p, err := NewProgram(n.Label, n.GCode)
		if err != nil {
			return nil, err
		}
		p.Props = props
		return p, nil
	}
	return nil, fmt.Errorf("unknown node type %q", n.Type)
}

func buildPath(segs []map[string][]float64) (*gg.Path, error) {
	p := gg.NewPath()
	for i, seg := range segs {
		if len(seg) != 1 {
			return nil, fmt.Errorf("path segment %d: want exactly one operation", i)
		}
		for op, v := range seg {
			want := map[string]int{"M": 2, "L": 2, "Q": 4, "C": 6, "Z": 0}[op]
			if op != "Z" && want == 0 {
				return nil, fmt.Errorf("path segment %d: unknown operation %q", i, op)
			}
			if len(v) != want {
				return nil, fmt.Errorf("path segment %d: %s takes %d values, got %d", i, op, want, len(v))
			}
			switch op {
			case "M":
				p.MoveTo(v[0], v[1])
			case "L":
				p.LineTo(v[0], v[1])
			case "Q":
				p.QuadraticTo(v[0], v[1], v[2], v[3])
			case "C":
				p.CubicTo(v[0], v[1], v[2], v[3], v[4], v[5])
			case "Z":
				p.Close()
			}
		}
	}
	return p, nil
}
