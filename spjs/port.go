package spjs

import (
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"
)

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "cmd_" + strconv.FormatInt(id, 36)
}

// Port is a serial port on the server, opened with the "default" buffer
// algorithm so flow control is left to the caller. It consumes the SPJS
// message stream; only one Port may be open per client.
type Port struct {
	sp   *SPJS
	name string
	baud int

	r *io.PipeReader
	w *io.PipeWriter

	closeCh   chan struct{}
	closeOnce sync.Once
}

var _ io.ReadWriteCloser = &Port{}

// OpenPort opens name at baud, reopening it whenever the server reports it
// closed.
func (sp *SPJS) OpenPort(name string, baud int) *Port {
	r, w := io.Pipe()
	p := &Port{
		sp:      sp,
		name:    name,
		baud:    baud,
		r:       r,
		w:       w,
		closeCh: make(chan struct{}),
	}
	go p.loop()
	go p.open()
	return p
}

func (p *Port) open() {
	err := p.sp.WriteString("open " + p.name + " " + strconv.Itoa(p.baud) + " default")
	if err != nil {
		log.Println("ERROR: spjs open:", err)
	}
}

func (p *Port) loop() {
	for {
		select {
		case <-p.closeCh:
			return
		case <-p.sp.closeCh:
			p.w.CloseWithError(ErrClosed)
			return
		case resp := <-p.sp.Messages():
			switch msg := resp.(type) {
			case *DataFrame:
				if msg.Port != "" && msg.Port != p.name {
					continue
				}
				data := msg.Data
				if !strings.HasSuffix(data, "\n") {
					data += "\n"
				}
				if _, err := io.WriteString(p.w, data); err != nil {
					return
				}
			case *SerialPortList:
				for _, port := range msg.SerialPorts {
					if port.Name == p.name && !port.IsOpen {
						go p.open()
					}
				}
			case *ErrorMessage:
				log.Println("ERROR: spjs:", msg.Error)
			}
		}
	}
}

func (p *Port) Read(b []byte) (int, error) { return p.r.Read(b) }

// Write sends b as a single frame. The JSON transport only carries text,
// so bytes outside ASCII (extended realtime commands) are dropped.
func (p *Port) Write(b []byte) (int, error) {
	data := make([]byte, 0, len(b))
	for _, c := range b {
		if c >= utf8.RuneSelf {
			log.Printf("WARN: spjs: dropped non-ASCII byte 0x%02x", c)
			continue
		}
		data = append(data, c)
	}
	if len(data) == 0 {
		return len(b), nil
	}

	err := p.sp.SendJSON(JSON{
		Port: p.name,
		Data: []Data{{Data: string(data), ID: nextID()}},
	})
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		close(p.closeCh)
		p.r.Close()
		go p.sp.WriteString("close " + p.name)
	})
	return nil
}
