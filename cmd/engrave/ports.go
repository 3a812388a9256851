package main

import (
	"sort"

	"github.com/mastercactapus/engrave/spjs"
	"go.bug.st/serial"
)

type portInfo struct {
	Name   string `json:"name"`
	Remote bool   `json:"remote,omitempty"`
	Open   bool   `json:"open,omitempty"`
}

// listPorts returns the local serial ports, plus the ports of sp when one
// is connected.
func listPorts(sp *spjs.SPJS) ([]portInfo, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	res := make([]portInfo, 0, len(names))
	for _, n := range names {
		res = append(res, portInfo{Name: n})
	}
	if sp == nil {
		return res, nil
	}
	for _, p := range sp.SerialPorts() {
		res = append(res, portInfo{Name: p.Name, Remote: true, Open: p.IsOpen})
	}
	return res, nil
}
