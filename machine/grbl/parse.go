package grbl

import (
	"errors"
	"strconv"
	"strings"

	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/machine"
)

func parseCoords(data string) (p coord.Point, err error) {
	parts := strings.Split(data, ",")
	if len(parts) < 3 {
		return p, errors.New("invalid number of elements")
	}
	p.X, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return p, err
	}
	p.Y, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return p, err
	}
	p.Z, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return p, err
	}
	return p, nil
}

func parseInts(data string) ([]int, error) {
	parts := strings.Split(data, ",")
	res := make([]int, len(parts))
	for i, s := range parts {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		res[i] = v
	}
	return res, nil
}

// parseBracket splits `[NAME:value]` into its name and value.
func parseBracket(data string) (name, value string) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "[")
	data = strings.TrimSuffix(data, "]")
	name, value, _ = strings.Cut(data, ":")
	return name, value
}

// parseProbe parses the value of a [PRB:x,y,z:ok] message.
func parseProbe(value string) (*machine.ProbeResult, error) {
	coords, ok, found := strings.Cut(value, ":")
	if !found {
		return nil, errors.New("missing probe result flag: " + value)
	}
	var res machine.ProbeResult
	var err error
	res.Valid = ok == "1"
	res.Point, err = parseCoords(coords)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// parseSetting parses a `$N=V` settings echo.
func parseSetting(line string) (int, string, bool) {
	key, val, ok := strings.Cut(strings.TrimPrefix(line, "$"), "=")
	if !ok {
		return 0, "", false
	}
	n, err := strconv.Atoi(key)
	if err != nil {
		return 0, "", false
	}
	return n, strings.TrimSpace(val), true
}

func parseCode(line, prefix string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, prefix)))
}

// statusReport is a single `<...>` report. Fields grbl did not include are
// flagged so they don't overwrite the last known values.
type statusReport struct {
	State    machine.State
	Substate int

	MPos, WPos, WCO          coord.Point
	HasMPos, HasWPos, HasWCO bool

	Feed, Spindle float64
	HasFS         bool

	Overrides    machine.Overrides
	HasOverrides bool

	Accessories    machine.Accessories
	HasAccessories bool

	Pins string

	PlannerFree, SerialFree int
	HasBuffer               bool

	Line    int
	HasLine bool
}

func parseStatus(data string) (*statusReport, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")
	parts := strings.Split(data, "|")

	var rep statusReport
	var ok bool
	rep.State, rep.Substate, ok = machine.ParseState(parts[0])
	if !ok {
		return nil, errors.New("unknown state: " + parts[0])
	}

	var err error
	for _, s := range parts[1:] {
		key, val, _ := strings.Cut(s, ":")
		switch key {
		case "MPos":
			rep.MPos, err = parseCoords(val)
			rep.HasMPos = true
		case "WPos":
			rep.WPos, err = parseCoords(val)
			rep.HasWPos = true
		case "WCO":
			rep.WCO, err = parseCoords(val)
			rep.HasWCO = true
		case "FS", "F":
			rep.HasFS = true
			f, sp, _ := strings.Cut(val, ",")
			rep.Feed, err = strconv.ParseFloat(f, 64)
			if err == nil && sp != "" {
				rep.Spindle, err = strconv.ParseFloat(sp, 64)
			}
		case "Ov":
			var v []int
			v, err = parseInts(val)
			if err == nil && len(v) != 3 {
				err = errors.New("invalid override report: " + val)
			}
			if err == nil {
				rep.HasOverrides = true
				rep.Overrides = machine.Overrides{Feed: v[0], Rapid: v[1], Spindle: v[2]}
			}
		case "A":
			rep.HasAccessories = true
			rep.Accessories = machine.Accessories{
				SpindleCW:  strings.ContainsRune(val, 'S'),
				SpindleCCW: strings.ContainsRune(val, 'C'),
				Flood:      strings.ContainsRune(val, 'F'),
				Mist:       strings.ContainsRune(val, 'M'),
			}
		case "Pn":
			rep.Pins = val
		case "Bf":
			var v []int
			v, err = parseInts(val)
			if err == nil && len(v) != 2 {
				err = errors.New("invalid buffer report: " + val)
			}
			if err == nil {
				rep.HasBuffer = true
				rep.PlannerFree, rep.SerialFree = v[0], v[1]
			}
		case "Ln":
			rep.HasLine = true
			rep.Line, err = strconv.Atoi(val)
		}
		if err != nil {
			return nil, err
		}
	}

	return &rep, nil
}
