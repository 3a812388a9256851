package render

// Event is published on the renderer's event hub.
type Event interface {
	Name() string
}

// Progress is a snapshot taken whenever an element (or an all-at-once
// group) starts a pass.
type Progress struct {
	Group   string
	Element string

	// Block is the index of the element in walk order, Line the number of
	// lines emitted so far.
	Block int
	Line  int

	Pass, PassCount int
	Z, ZStart, ZEnd float64
}

// Failed ends a render that returned an error.
type Failed struct {
	Err error
}

// Finished ends a render that completed or was stopped.
type Finished struct {
	Lines   int
	Stopped bool
}

func (Progress) Name() string { return "progress" }
func (Failed) Name() string   { return "failed" }
func (Finished) Name() string { return "finished" }
