package grbl

import (
	"sort"
	"strconv"
)

// Well known setting numbers.
const (
	SettingStatusReport  = 10
	SettingHomingDirMask = 23
	SettingLaserMode     = 32

	// SettingLast is the highest numbered setting in a `$$` dump.
	SettingLast = 132
)

// Settings holds the `$N=V` values reported by the controller.
type Settings map[int]string

// Float returns setting n as a number.
func (s Settings) Float(n int) (float64, bool) {
	v, ok := s[n]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

// Int returns setting n as an integer (masks, booleans).
func (s Settings) Int(n int) (int, bool) {
	f, ok := s.Float(n)
	return int(f), ok
}

func (s Settings) Clone() Settings {
	c := make(Settings, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Keys returns the setting numbers in ascending order.
func (s Settings) Keys() []int {
	keys := make([]int, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
