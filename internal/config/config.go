package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// LoomRange is an inclusive range of loom numbers.
type LoomRange struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// Config holds all runtime settings for the milltrack server.
type Config struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
	DBPath  string `yaml:"db_path"`

	// Loom numbers installed at each weaving location.
	LoomRanges map[string][]LoomRange `yaml:"loom_ranges"`

	// Dashboard delay thresholds, in days since the order's office date.
	StageThresholds struct {
		Warping    int `yaml:"warping"`
		Sizing     int `yaml:"sizing"`
		BeamOnLoom int `yaml:"beam_on_loom"`
		Grey       int `yaml:"grey"`
	} `yaml:"stage_thresholds"`

	// Combos delayed at least this many days show on the dashboard.
	DelayCutoffDays int `yaml:"delay_cutoff_days"`
}

// Default returns the configuration matching the mill's current floor
// layout: looms 25-48 and 68-112 at 212/1, looms 1-128 at 259/1.
func Default() *Config {
	c := &Config{
		Port:    9000,
		DataDir: "data",
		DBPath:  "milltrack.db",
		LoomRanges: map[string][]LoomRange{
			"212/1": {{From: 25, To: 48}, {From: 68, To: 112}},
			"259/1": {{From: 1, To: 128}},
		},
		DelayCutoffDays: 10,
	}
	c.StageThresholds.Warping = 3
	c.StageThresholds.Sizing = 5
	c.StageThresholds.BeamOnLoom = 7
	c.StageThresholds.Grey = 10
	return c
}

// Load reads a YAML config file, filling unset fields from Default.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if c.Port == 0 {
		c.Port = 9000
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.DBPath == "" {
		c.DBPath = "milltrack.db"
	}
	if len(c.LoomRanges) == 0 {
		c.LoomRanges = Default().LoomRanges
	}
	if c.DelayCutoffDays == 0 {
		c.DelayCutoffDays = 10
	}
	return c, nil
}

// LoomsForLocation expands the configured ranges for a location into a
// sorted list of loom numbers. Unknown locations yield an empty list.
func (c *Config) LoomsForLocation(location string) []int {
	ranges, ok := c.LoomRanges[location]
	if !ok {
		return nil
	}
	var looms []int
	for _, r := range ranges {
		for n := r.From; n <= r.To; n++ {
			looms = append(looms, n)
		}
	}
	sort.Ints(looms)
	return looms
}

// Locations returns the configured weaving locations, sorted.
func (c *Config) Locations() []string {
	locs := make([]string, 0, len(c.LoomRanges))
	for loc := range c.LoomRanges {
		locs = append(locs, loc)
	}
	sort.Strings(locs)
	return locs
}
