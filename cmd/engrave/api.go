package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/document"
	"github.com/mastercactapus/engrave/machine"
	"github.com/mastercactapus/engrave/machine/grbl"
	"github.com/mastercactapus/engrave/render"
	"github.com/mastercactapus/engrave/spjs"
)

const gridFile = "grid.json"

var realtimeCommands = map[string]byte{
	"hold":         grbl.CmdFeedHold,
	"start":        grbl.CmdCycleStart,
	"status":       grbl.CmdStatusQuery,
	"door":         grbl.CmdSafetyDoor,
	"jogcancel":    grbl.CmdJogCancel,
	"feed-reset":   grbl.OvFeedReset,
	"feed+10":      grbl.OvFeedPlus10,
	"feed-10":      grbl.OvFeedMinus10,
	"feed+1":       grbl.OvFeedPlus1,
	"feed-1":       grbl.OvFeedMinus1,
	"rapid-reset":  grbl.OvRapidReset,
	"rapid-half":   grbl.OvRapidHalf,
	"rapid-qtr":    grbl.OvRapidQuarter,
	"spindle-rst":  grbl.OvSpindleReset,
	"spindle+10":   grbl.OvSpindlePlus10,
	"spindle-10":   grbl.OvSpindleMinus10,
	"spindle+1":    grbl.OvSpindlePlus1,
	"spindle-1":    grbl.OvSpindleMinus1,
	"spindle-stop": grbl.ToggleSpindleStop,
	"flood":        grbl.ToggleFlood,
	"mist":         grbl.ToggleMist,
}

type api struct {
	http.Handler

	c       *grbl.Controller
	m       *machine.Machine
	sp      *spjs.SPJS
	prof    Profile
	dataDir string

	r    *render.Renderer
	sse  *sse.Server
	busy chan struct{}

	mx sync.Mutex
	// abort cancels the running render
	abort context.CancelFunc
	done  chan struct{}
}

func newAPI(c *grbl.Controller, sp *spjs.SPJS, prof Profile, dir string) *api {
	router := mux.NewRouter()

	a := &api{
		Handler: router,
		c:       c,
		m:       machine.NewMachine(c),
		sp:      sp,
		prof:    prof,
		dataDir: dir,
		r:       render.New(prof.renderOptions()),
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(ioutil.Discard, "", 0),
		}),
		busy: make(chan struct{}, 1),
	}

	fs := http.FileServer(http.Dir(dir))
	router.PathPrefix("/data/").Handler(http.StripPrefix("/data", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case "GET":
			fs.ServeHTTP(w, req)
		case "PUT":
			a.putFile(w, req)
		case "DELETE":
			a.deleteFile(w, req)
		default:
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})))

	r := router.PathPrefix("/api").Subrouter()
	r.HandleFunc("/run", a.run).Methods("POST")
	r.HandleFunc("/render", a.render).Methods("POST")
	r.HandleFunc("/stop", a.stop).Methods("POST")
	r.HandleFunc("/realtime/{cmd}", a.realtime).Methods("POST")
	r.HandleFunc("/probe", a.probe).Methods("POST")
	r.HandleFunc("/status", a.status).Methods("GET")
	r.HandleFunc("/settings", a.settings).Methods("GET")
	r.HandleFunc("/ports", a.ports).Methods("GET")

	router.PathPrefix("/events/").Handler(a.sse)
	go forwardMachine(a.sse, c.Events())
	go forwardRender(a.sse, a.r.Events())

	return a
}

// Close stops a running render and ends the event streams.
func (a *api) Close() {
	a.mx.Lock()
	abort, done := a.abort, a.done
	a.mx.Unlock()
	if abort != nil {
		abort()
		<-done
	}
	a.r.Close()
	a.sse.Shutdown()
}

func safePath(base, name string) (bool, string) {
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		log.Println("invalid path '" + name + "'")
		return false, ""
	}
	dir := string(base)
	if dir == "" {
		dir = "."
	}
	fullName := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+name)))
	return true, fullName
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		log.Println("ERROR: encode:", err)
	}
}

func (a *api) run(w http.ResponseWriter, req *http.Request) {
	data, err := ioutil.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	parts := strings.Split(string(data), "\n")
	p := parts[:0]
	for _, str := range parts {
		str = strings.TrimSpace(str)
		if str == "" {
			continue
		}
		p = append(p, str)
	}
	a.c.Push(p...)
}

// render starts rendering the posted document to the controller. With
// level=1 every move is corrected by the last probed grid.
func (a *api) render(w http.ResponseWriter, req *http.Request) {
	doc, err := document.Decode(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	select {
	case a.busy <- struct{}{}:
	default:
		http.Error(w, render.ErrRunning.Error(), http.StatusConflict)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	var sink render.Sink = render.NewDeviceSink(ctx, a.c)
	if req.FormValue("level") == "1" {
		sink, err = a.leveler(sink)
		if err != nil {
			cancel()
			<-a.busy
			log.Printf("ERROR: level: %+v", err)
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	}

	done := make(chan struct{})
	a.mx.Lock()
	a.abort, a.done = cancel, done
	a.mx.Unlock()
	go func() {
		defer close(done)
		defer func() { <-a.busy }()
		defer cancel()
		err := a.r.Render(ctx, doc, sink)
		if err != nil && !errors.Is(err, render.ErrStopped) {
			log.Printf("ERROR: render '%s': %+v", doc.Name(), err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

func (a *api) leveler(next render.Sink) (render.Sink, error) {
	ok, name := safePath(a.dataDir, gridFile)
	if !ok {
		return nil, errors.New("invalid grid path")
	}
	data, err := ioutil.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var res []machine.ProbeResult
	err = json.Unmarshal(data, &res)
	if err != nil {
		return nil, err
	}
	points := make([]coord.Point, 0, len(res))
	for _, p := range res {
		if p.Valid {
			points = append(points, p.Point)
		}
	}
	l, err := a.m.Level(next, a.prof.LevelGranularity, points)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// stop ends the running render after the lines already queued; with
// abort=1 the machine is held and reset instead.
func (a *api) stop(w http.ResponseWriter, req *http.Request) {
	if req.FormValue("abort") == "1" {
		a.mx.Lock()
		abort := a.abort
		a.mx.Unlock()
		if abort != nil {
			abort()
		}
		return
	}
	a.r.Stop()
}

func (a *api) realtime(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["cmd"]

	var err error
	switch name {
	case "reset":
		err = a.c.SoftReset()
	case "unlock":
		a.c.Unlock()
	case "home":
		a.c.Home()
	default:
		b, ok := realtimeCommands[name]
		if !ok {
			http.NotFound(w, req)
			return
		}
		err = a.c.Realtime(b)
	}
	if err != nil {
		log.Printf("ERROR: realtime %s: %+v", name, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (a *api) probe(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, gridFile)
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var err error
	var opt machine.ProbeOptions
	opt.ZeroZAxis = req.FormValue("zeroZAxis") == "1"

	parse := func(param string) (val float64) {
		if err != nil {
			return 0
		}
		val, err = strconv.ParseFloat(req.FormValue(param), 64)
		return val
	}
	opt.FeedRate = parse("feedRate")
	opt.MaxTravel = parse("maxZTravel")

	grid := req.FormValue("grid") == "1"
	var gridOpt machine.ProbeGridOptions
	if grid {
		gridOpt.ProbeOptions = opt
		gridOpt.DistanceX = parse("xDist")
		gridOpt.DistanceY = parse("yDist")
		gridOpt.Granularity = parse("granularity")
	}

	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var res interface{}
	if grid {
		res, err = a.m.ProbeZGrid(req.Context(), gridOpt)
	} else {
		res, err = a.m.ProbeZ(req.Context(), opt)
	}

	if err != nil {
		log.Printf("ERROR: probe grid=%t: %+v", grid, err)
		http.Error(w, err.Error(), 500)
		return
	}

	out := io.Writer(w)
	if grid {
		os.MkdirAll(filepath.Dir(name), 0755)
		f, err := os.Create(name)
		if err != nil {
			log.Printf("ERROR: create '%s': %+v", name, err)
		} else {
			defer f.Close()
			out = io.MultiWriter(w, f)
		}
	}
	err = json.NewEncoder(out).Encode(res)
	if err != nil {
		log.Println("ERROR: encode:", err)
	}
}

func (a *api) status(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, newStatusJSON(a.c.Status()))
}

func (a *api) settings(w http.ResponseWriter, req *http.Request) {
	if !a.c.SettingsReady() {
		http.Error(w, "settings not received yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, a.c.Settings())
}

func (a *api) ports(w http.ResponseWriter, req *http.Request) {
	res, err := listPorts(a.sp)
	if err != nil {
		log.Println("ERROR: list ports:", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}

func (a *api) putFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	os.MkdirAll(filepath.Dir(name), 0755)
	f, err := os.Create(name)
	if err != nil {
		log.Printf("ERROR: create '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
	defer f.Close()
	_, err = io.Copy(f, req.Body)
	if err != nil {
		log.Printf("ERROR: write '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
}

func (a *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := os.Remove(name)
	if err != nil {
		log.Printf("ERROR: delete '%s': %+v", name, err)
		http.Error(w, err.Error(), 500)
		return
	}
}
