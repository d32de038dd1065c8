package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"memtest/kernel/config"
	"memtest/kernel/hal"
	"memtest/kernel/kfmt"
	"memtest/kernel/kmain"
)

const envPrefix = "MEMTEST"

// options holds the flags that are not part of config.Config.
type options struct {
	configFile string
	cmdLine    string
	tests      []int
}

// flagKeys maps command line flags to their configuration keys.
var flagKeys = map[string]string{
	"cpus":         "cpus",
	"mode":         "mode",
	"beep":         "beep",
	"passes":       "passes",
	"iter-scale":   "iter_scale",
	"window":       "window",
	"fade-delay":   "fade_delay",
	"hold":         "hold",
	"overflow":     "overflow",
	"max-patterns": "max_patterns",
	"size":         "arena.size",
	"percent":      "arena.percent",
	"segments":     "arena.segments",
	"lock":         "arena.lock",
	"report-yaml":  "report.yaml",
	"report-image": "report.image",
	"log-level":    "log.level",
	"log-file":     "log.file",
	"log-json":     "log.json",
}

// newRootCmd returns the memtest command. runFn is invoked with the merged
// settings.
func newRootCmd(runFn func(*cobra.Command, config.Config) error) *cobra.Command {
	var (
		opts options
		v    = viper.New()
		def  = config.Default()
	)

	cmd := &cobra.Command{
		Use:   "memtest",
		Short: "Test the host's memory for defects",
		Long: `memtest locks a region of RAM and runs the standard memory test sequence
over it on every processor. Press Esc or q to stop, s to skip the current
test and m to cycle the error display mode.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, opts)
			if err != nil {
				return err
			}
			return runFn(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "configuration file (default: ./memtest.yaml or /etc/memtest/memtest.yaml)")
	flags.StringVar(&opts.cmdLine, "cmdline", "", `boot style options applied last, e.g. "cpus=2 tests=3,7 nobeep"`)
	flags.IntSliceVarP(&opts.tests, "tests", "t", nil, "indices of the tests to run (default: all)")

	flags.Int("cpus", def.CPUs, "number of processors that run the tests")
	flags.String("mode", def.Mode, "error display mode: summary, address, patterns or none")
	flags.Bool("beep", def.Beep, "beep on the first error of every pass")
	flags.IntP("passes", "p", def.Passes, "number of passes; 0 runs until stopped")
	flags.Int("iter-scale", def.IterScale, "percentage applied to every test's iteration count")
	flags.Uint64("window", def.Window, "words processed between two progress updates")
	flags.Duration("fade-delay", def.FadeDelay, "time the bit fade test waits before checking memory")
	flags.Duration("hold", def.Hold, "time an internal error stays on screen")
	flags.String("overflow", def.Overflow, "what happens to new failures once every BadRAM pattern is in use: ignore or merge")
	flags.Int("max-patterns", def.MaxPatterns, "maximum number of BadRAM patterns")
	flags.StringP("size", "s", def.Arena.Size, "amount of memory to test, e.g. 512M or 2G")
	flags.Float64("percent", def.Arena.Percent, "share of available memory to test when --size is empty")
	flags.Int("segments", def.Arena.Segments, "number of guarded segments the memory is split into")
	flags.Bool("lock", def.Arena.Lock, "lock the tested memory into RAM")
	flags.String("report-yaml", def.Report.YAML, "write a YAML report to this file")
	flags.String("report-image", def.Report.Image, "write a PNG failure map to this file")
	flags.String("log-level", def.Log.Level, "log level: debug, info, warn or error")
	flags.String("log-file", def.Log.File, "write the run journal to this file")
	flags.Bool("log-json", def.Log.JSON, "format the run journal as JSON")

	for flag, key := range flagKeys {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	return cmd
}

// loadConfig merges, in increasing order of precedence, the defaults, the
// configuration file, MEMTEST_ environment variables, command line flags and
// the boot style command line.
func loadConfig(v *viper.Viper, opts options) (config.Config, error) {
	cfg := config.Default()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.configFile != "" {
		v.SetConfigFile(opts.configFile)
	} else {
		v.SetConfigName("memtest")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/memtest")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.configFile != "" || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if opts.tests != nil {
		cfg.Tests = opts.tests
	}

	if err := cfg.ApplyCmdLine(opts.cmdLine); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// run executes a memory test with the supplied settings.
func run(cmd *cobra.Command, cfg config.Config) error {
	logger, logFile, err := setupLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if logFile != nil {
		defer func() { _ = logFile.Close() }()
	}

	// Diagnostics are buffered by kfmt while the status screen owns the
	// terminal unless they go to a log file.
	sink := logger.WriterLevel(logrus.InfoLevel)
	defer func() { _ = sink.Close() }()
	if logFile != nil {
		kfmt.SetOutputSink(sink)
	}

	hw, kerr := hal.DetectHardware(kfmtWriter{}, os.Stdin, os.Stdout, cfg.Beep)
	if kerr != nil {
		return kerr
	}

	session, err := kmain.Kmain(cmd.Context(), cfg, hw)
	hw.Close()

	if kfmt.GetOutputSink() == nil {
		kfmt.SetOutputSink(sink)
	}

	if session == nil {
		return err
	}

	journal(logger, session)

	if werr := writeReports(cfg.Report, session); werr != nil && err == nil {
		err = werr
	}

	out := cmd.OutOrStdout()
	if session.Result.Errors != 0 {
		fmt.Fprintln(out, session.Errors.BadRAM())
	}
	fmt.Fprintf(out, "%d pass(es), %d error(s)\n", session.Result.Passes, session.Result.Errors)

	return err
}

// kfmtWriter routes driver diagnostics through kfmt.
type kfmtWriter struct{}

func (kfmtWriter) Write(p []byte) (int, error) {
	kfmt.Printf("%s", p)
	return len(p), nil
}
