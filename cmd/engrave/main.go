package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/mastercactapus/engrave/document"
	"github.com/mastercactapus/engrave/machine/grbl"
	"github.com/mastercactapus/engrave/render"
	"github.com/mastercactapus/engrave/spjs"
	"github.com/mastercactapus/engrave/vm"
)

func main() {
	log.SetFlags(log.Lshortfile)

	port := flag.String("port", "/dev/ttyUSB0", "Port path (or name if using SPJS).")
	baud := flag.Int("baud", grbl.DefaultBaud, "Baud rate of the port.")
	spjsURL := flag.String("spjs", "", "Websocket URL of an SPJS server to connect through (e.g. ws://cnc-bridge:8989/ws).")
	sim := flag.Bool("sim", false, "Use a simulated machine instead of a port.")
	config := flag.String("config", "", "YAML machine profile.")
	addr := flag.String("addr", ":9091", "Address to bind the server to.")
	dir := flag.String("dir", "./data", "Data directory to use.")
	renderDoc := flag.String("render", "", "Render a JSON document to gcode and exit.")
	out := flag.String("out", "-", "Output file of -render.")
	list := flag.Bool("list", false, "List serial ports and exit.")
	verbose := flag.Bool("v", false, "Log every line sent to and received from the machine.")
	flag.Parse()

	prof, err := loadProfile(*config)
	if err != nil {
		log.Fatal(err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			prof.Port = *port
		case "baud":
			prof.Baud = *baud
		case "spjs":
			prof.SPJS = *spjsURL
		}
	})

	if *list {
		ports, err := listPorts(nil)
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return
	}

	if *renderDoc != "" {
		err = renderFile(prof, *renderDoc, *out)
		if err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg := prof.grblConfig(*verbose)
	var sp *spjs.SPJS
	var c *grbl.Controller
	switch {
	case *sim:
		c = grbl.NewController(vm.NewSim(), cfg)
	case prof.SPJS != "":
		sp = spjs.NewSPJS(prof.SPJS)
		c = grbl.OpenSPJS(sp, prof.Port, prof.Baud, cfg)
	default:
		c, err = grbl.OpenSerial(prof.Port, prof.Baud, cfg)
		if err != nil {
			log.Fatal(err)
		}
	}
	log.Println("Connected.")

	api := newAPI(c, sp, prof, *dir)

	err = http.ListenAndServe(*addr, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		log.Printf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
		api.ServeHTTP(w, req)
	}))
	if err != nil {
		log.Fatal(err)
	}
}

// renderFile writes the gcode of the document in name to out ("-" is
// stdout).
func renderFile(prof Profile, name, out string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	doc, err := document.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}

	sink := render.NewWriterSink(os.Stdout)
	if out != "-" {
		o, err := os.Create(out)
		if err != nil {
			return err
		}
		sink = render.NewFileSink(o)
	}

	r := render.New(prof.renderOptions())
	defer r.Close()
	return r.Render(context.Background(), doc, sink)
}
