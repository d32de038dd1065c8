// Package config holds the settings that control a memory test run.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"memtest/kernel/mem"
	"memtest/kernel/memtest/badram"
	"memtest/kernel/memtest/errinfo"
)

// Arena describes the memory that the hosted runner locks and tests.
type Arena struct {
	// Size is the amount of memory to test (e.g. "256M"). It takes
	// precedence over Percent.
	Size string `mapstructure:"size" yaml:"size"`

	// Percent selects a share of the currently available memory when Size
	// is empty.
	Percent float64 `mapstructure:"percent" yaml:"percent"`

	// Segments splits the arena into this many ranges, each separated by an
	// unmapped guard page.
	Segments int `mapstructure:"segments" yaml:"segments"`

	// Lock pins the arena in RAM.
	Lock bool `mapstructure:"lock" yaml:"lock"`
}

// Report lists the files written once the run completes. Empty paths are
// skipped.
type Report struct {
	YAML  string `mapstructure:"yaml" yaml:"yaml"`
	Image string `mapstructure:"image" yaml:"image"`
}

// Log configures the run journal.
type Log struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// Config holds all run settings.
type Config struct {
	CPUs        int           `mapstructure:"cpus" yaml:"cpus"`
	Mode        string        `mapstructure:"mode" yaml:"mode"`
	Beep        bool          `mapstructure:"beep" yaml:"beep"`
	Tests       []int         `mapstructure:"tests" yaml:"tests"`
	Passes      int           `mapstructure:"passes" yaml:"passes"`
	IterScale   int           `mapstructure:"iter_scale" yaml:"iter_scale"`
	Window      uint64        `mapstructure:"window" yaml:"window"`
	FadeDelay   time.Duration `mapstructure:"fade_delay" yaml:"fade_delay"`
	Hold        time.Duration `mapstructure:"hold" yaml:"hold"`
	Overflow    string        `mapstructure:"overflow" yaml:"overflow"`
	MaxPatterns int           `mapstructure:"max_patterns" yaml:"max_patterns"`

	Arena   Arena                     `mapstructure:"arena" yaml:"arena"`
	Report  Report                    `mapstructure:"report" yaml:"report"`
	Log     Log                       `mapstructure:"log" yaml:"log"`
	Weights errinfo.ConfidenceWeights `mapstructure:"confidence" yaml:"confidence"`
}

// Default returns the default settings.
func Default() Config {
	return Config{
		CPUs:        runtime.NumCPU(),
		Mode:        errinfo.ModeSummary.String(),
		Passes:      1,
		IterScale:   100,
		Window:      mem.SpinWindowWords,
		FadeDelay:   5 * time.Minute,
		Hold:        60 * time.Second,
		Overflow:    badram.OverflowIgnore.String(),
		MaxPatterns: badram.MaxPatterns,
		Arena: Arena{
			Size:     "64M",
			Segments: 1,
			Lock:     true,
		},
		Log:     Log{Level: "info"},
		Weights: errinfo.DefaultWeights(),
	}
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	switch {
	case c.CPUs < 1:
		return errors.New("cpus must be at least 1")
	case c.Passes < 0:
		return errors.New("passes must not be negative")
	case c.IterScale < 1:
		return errors.New("iter_scale must be a positive percentage")
	case c.Window == 0 || c.Window&1 != 0:
		return errors.New("window must be a positive, even number of words")
	case c.MaxPatterns < 1:
		return errors.New("max_patterns must be at least 1")
	case c.Arena.Segments < 1:
		return errors.New("arena.segments must be at least 1")
	case c.Arena.Size == "" && (c.Arena.Percent <= 0 || c.Arena.Percent > 100):
		return errors.New("arena.percent must be in (0, 100] when arena.size is not set")
	}

	if _, err := c.DisplayMode(); err != nil {
		return err
	}
	if _, err := c.OverflowPolicy(); err != nil {
		return err
	}
	if c.Arena.Size != "" {
		if _, err := ParseSize(c.Arena.Size); err != nil {
			return fmt.Errorf("arena.size: %w", err)
		}
	}

	return nil
}

// DisplayMode returns the parsed error display mode.
func (c *Config) DisplayMode() (errinfo.Mode, error) {
	m, ok := errinfo.ParseMode(c.Mode)
	if !ok {
		return 0, fmt.Errorf("unknown display mode %q", c.Mode)
	}
	return m, nil
}

// OverflowPolicy returns the parsed BadRAM overflow policy.
func (c *Config) OverflowPolicy() (badram.OverflowPolicy, error) {
	p, ok := badram.ParseOverflowPolicy(c.Overflow)
	if !ok {
		return 0, fmt.Errorf("unknown badram overflow policy %q", c.Overflow)
	}
	return p, nil
}

// ArenaSize returns the configured arena size in bytes or 0 if the arena
// is sized as a percentage of available memory.
func (c *Config) ArenaSize() (mem.Size, error) {
	if c.Arena.Size == "" {
		return 0, nil
	}
	return ParseSize(c.Arena.Size)
}

// ParseSize parses a byte count with an optional B, K, M or G suffix.
func ParseSize(s string) (mem.Size, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, errors.New("empty size")
	}

	unit := mem.Byte
	switch s[len(s)-1] {
	case 'B':
		s = s[:len(s)-1]
	case 'K':
		unit, s = mem.Kb, s[:len(s)-1]
	case 'M':
		unit, s = mem.Mb, s[:len(s)-1]
	case 'G':
		unit, s = mem.Gb, s[:len(s)-1]
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	return mem.Size(v) * unit, nil
}
