package config

import (
	"sort"
)

// Presets tweak the defaults for common experiments.
var Presets = map[string]func(*Config){
	"default": func(*Config) {},
	"fast_replan": func(c *Config) {
		c.Controller.MPC.ReplanEvery = 1
	},
	"slow_replan": func(c *Config) {
		c.Controller.MPC.ReplanEvery = 25
	},
	"rigid_feet": func(c *Config) {
		c.Controller.Foot.Foothold.Enabled = false
		c.Controller.ToeOffLeadTime = 0
	},
	"stiff_icp": func(c *Config) {
		c.Controller.ICP.Gain = 3
		c.Controller.CoMWeight = 50
	},
	"low_friction": func(c *Config) {
		c.Friction = 0.3
	},
	"rk4": func(c *Config) {
		c.Integrator = "rk4"
	},
}

// GetPreset returns the defaults with the named preset applied, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
