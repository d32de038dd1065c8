package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseCmdLine splits a boot style command line into key-value pairs.
// Arguments of the form "foo=bar" map foo to bar while bare arguments such
// as "nobeep" map to themselves.
func ParseCmdLine(cmdLine string) map[string]string {
	kv := make(map[string]string)
	for _, pair := range strings.Fields(cmdLine) {
		parts := strings.Split(pair, "=")
		switch len(parts) {
		case 2: // foo=bar
			kv[parts[0]] = parts[1]
		case 1: // nofoo
			kv[parts[0]] = parts[0]
		}
	}
	return kv
}

// ApplyCmdLine overrides settings with the options of a boot style command
// line. Recognized options are cpus, mode, beep/nobeep, tests (a comma
// separated list of test indices), passes, iterscale, window, fade, hold,
// overflow and maxpatterns. Unknown options are ignored.
func (c *Config) ApplyCmdLine(cmdLine string) error {
	for k, v := range ParseCmdLine(cmdLine) {
		var err error

		switch k {
		case "cpus":
			c.CPUs, err = strconv.Atoi(v)
		case "mode":
			c.Mode = v
		case "beep":
			c.Beep = true
		case "nobeep":
			c.Beep = false
		case "tests":
			c.Tests, err = parseList(v)
		case "passes":
			c.Passes, err = strconv.Atoi(v)
		case "iterscale":
			c.IterScale, err = strconv.Atoi(v)
		case "window":
			c.Window, err = strconv.ParseUint(v, 0, 64)
		case "fade":
			c.FadeDelay, err = time.ParseDuration(v)
		case "hold":
			c.Hold, err = time.ParseDuration(v)
		case "overflow":
			c.Overflow = v
		case "maxpatterns":
			c.MaxPatterns, err = strconv.Atoi(v)
		}

		if err != nil {
			return fmt.Errorf("cmdline option %q: %w", k, err)
		}
	}

	return nil
}

func parseList(v string) ([]int, error) {
	var list []int
	for _, field := range strings.Split(v, ",") {
		if field == "" {
			continue
		}

		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, nil
}
