// Command gcode-dump checks a gcode file and prints the machine state it
// leaves behind.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"

	gocnc "github.com/joushou/gocnc/gcode"
	"github.com/joushou/gocnc/vm"
	"github.com/mastercactapus/engrave/gcode"
)

func main() {
	log.SetFlags(log.Lshortfile)
	interpret := flag.Bool("vm", true, "Also run the file through the gocnc interpreter and dump its state.")
	flag.Parse()

	var data []byte
	var err error
	if flag.NArg() == 0 || flag.Arg(0) == "-" {
		data, err = ioutil.ReadAll(os.Stdin)
	} else {
		data, err = ioutil.ReadFile(flag.Arg(0))
	}
	if err != nil {
		log.Fatal(err)
	}

	s, err := check(bytes.NewReader(data), os.Stdout)
	if err != nil {
		log.Fatal(err)
	}
	if *interpret {
		dump(s.valid)
	}
	if s.invalid > 0 {
		os.Exit(1)
	}
}

type summary struct {
	lines, moves, invalid int
	state                 *gcode.State

	// valid holds every line that passed validation
	valid []gcode.Block
}

// check validates every line and follows the modal state, writing a
// report to out.
func check(r io.Reader, out io.Writer) (*summary, error) {
	s := &summary{state: gcode.NewState()}
	p := gcode.NewParser(r)
	for {
		b, err := p.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		s.lines++
		if err := b.Validate(); err != nil {
			s.invalid++
			fmt.Fprintf(out, "line %d: %s: %v\n", s.lines, b, err)
			continue
		}
		if b.IsMove() {
			s.moves++
		}
		s.state.Update(b)
		s.valid = append(s.valid, b)
	}

	pos := s.state.Position()
	fmt.Fprintf(out, "%d lines, %d moves, %d invalid\n", s.lines, s.moves, s.invalid)
	fmt.Fprintf(out, "end position X%g Y%g Z%g\n", pos.X, pos.Y, pos.Z)
	return s, nil
}

// dump interprets the normalized form of lines with gocnc and prints the
// resulting machine state.
func dump(lines []gcode.Block) {
	defer func() {
		if r := recover(); r != nil {
			log.Println("ERROR: interpret:", r)
		}
	}()
	src, err := ioutil.ReadAll(gcode.NewBuffer(&gcode.BlocksReader{Blocks: lines}))
	if err != nil {
		log.Println("ERROR: read:", err)
		return
	}
	doc, err := gocnc.Parse(string(src))
	if err != nil {
		log.Println("ERROR: parse:", err)
		return
	}

	var m vm.Machine
	m.Init()
	m.Process(doc)
	m.Dump()
}
