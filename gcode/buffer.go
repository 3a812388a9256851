package gcode

import (
	"bytes"
	"io"
)

// Buffer turns a Reader back into text: one line per block, each ending in
// a newline. The error that ended the Reader (usually io.EOF) is returned
// once every buffered byte has been read.
type Buffer struct {
	src     Reader
	pending bytes.Buffer
	err     error
}

var _ io.Reader = (*Buffer)(nil)

func NewBuffer(r Reader) *Buffer { return &Buffer{src: r} }

// Buffered returns the text formatted but not yet read.
func (b *Buffer) Buffered() []byte { return b.pending.Bytes() }

func (b *Buffer) fill(n int) {
	for b.err == nil && b.pending.Len() < n {
		var bl Block
		bl, b.err = b.src.Read()
		if b.err == nil {
			b.pending.WriteString(bl.String())
			b.pending.WriteByte('\n')
		}
	}
}

func (b *Buffer) Read(p []byte) (int, error) {
	b.fill(len(p))
	if b.pending.Len() == 0 {
		return 0, b.err
	}
	return b.pending.Read(p)
}
