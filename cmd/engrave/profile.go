package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mastercactapus/engrave/engrave"
	"github.com/mastercactapus/engrave/machine/grbl"
	"github.com/mastercactapus/engrave/render"
	"gopkg.in/yaml.v3"
)

// Profile describes a machine. It is read from a YAML file; command line
// flags override the connection fields.
type Profile struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	SPJS string `yaml:"spjs"`

	SafeZ        float64 `yaml:"safe_z"`
	ToolDiameter float64 `yaml:"tool_diameter"`
	StepOver     float64 `yaml:"step_over"`
	Tolerance    float64 `yaml:"tolerance"`
	Laser        bool    `yaml:"laser"`

	// Feed and Power are the defaults of every document.
	Feed  float64 `yaml:"feed"`
	Power int     `yaml:"power"`

	BacklashX    float64       `yaml:"backlash_x"`
	BacklashY    float64       `yaml:"backlash_y"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// LevelGranularity is the longest move the leveler leaves unsplit.
	LevelGranularity float64 `yaml:"level_granularity"`
}

func defaultProfile() Profile {
	return Profile{
		Port:             "/dev/ttyUSB0",
		Baud:             grbl.DefaultBaud,
		SafeZ:            render.DefaultSafeZ,
		ToolDiameter:     render.DefaultToolDiameter,
		StepOver:         render.DefaultStepOver,
		Tolerance:        render.DefaultTolerance,
		PollInterval:     250 * time.Millisecond,
		LevelGranularity: 5,
	}
}

// loadProfile reads name over the defaults. An empty name returns the
// defaults.
func loadProfile(name string) (Profile, error) {
	p := defaultProfile()
	if name == "" {
		return p, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse %s: %w", name, err)
	}
	return p, nil
}

func (p Profile) grblConfig(transcript bool) grbl.Config {
	return grbl.Config{
		BacklashX:    p.BacklashX,
		BacklashY:    p.BacklashY,
		PollInterval: p.PollInterval,
		Transcript:   transcript,
	}
}

func (p Profile) renderOptions() render.Options {
	def := engrave.New()
	if p.Feed > 0 {
		def.Feed = p.Feed
	}
	if p.Power > 0 {
		def.Power = p.Power
	}
	return render.Options{
		SafeZ:        p.SafeZ,
		ToolDiameter: p.ToolDiameter,
		StepOver:     p.StepOver,
		Tolerance:    p.Tolerance,
		Laser:        p.Laser,
		Defaults:     &def,
	}
}
