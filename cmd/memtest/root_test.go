package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"memtest/device/video/console"
	"memtest/kernel/config"
	"memtest/kernel/kmain"
	"memtest/kernel/mem/memmap"
	"memtest/kernel/memtest/display"
	"memtest/kernel/memtest/errinfo"
	"memtest/kernel/memtest/runner"
	"memtest/kernel/memtest/seq"
)

// execute runs the root command with args and returns the merged settings.
func execute(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()

	var got config.Config
	cmd := newRootCmd(func(_ *cobra.Command, cfg config.Config) error {
		got = cfg
		return nil
	})
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	return got, err
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "memtest.yaml")
	if err := os.WriteFile(cfgFile, []byte(`
passes: 3
tests: [1, 2]
arena:
  segments: 4
confidence:
  divisor: 10
`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("defaults", func(t *testing.T) {
		cfg, err := execute(t)
		if err != nil {
			t.Fatal(err)
		}

		if cfg.CPUs != runtime.NumCPU() || cfg.Passes != 1 || cfg.Arena.Size != "64M" || cfg.Tests != nil {
			t.Fatalf("expected default settings; got %+v", cfg)
		}
	})

	t.Run("flags", func(t *testing.T) {
		cfg, err := execute(t, "--cpus", "2", "--tests", "3,7", "--size", "128M", "--fade-delay", "1s", "--overflow", "merge")
		if err != nil {
			t.Fatal(err)
		}

		if cfg.CPUs != 2 || cfg.Arena.Size != "128M" || cfg.FadeDelay != time.Second || cfg.Overflow != "merge" {
			t.Fatalf("expected flags to override defaults; got %+v", cfg)
		}

		if len(cfg.Tests) != 2 || cfg.Tests[0] != 3 || cfg.Tests[1] != 7 {
			t.Fatalf("expected tests [3 7]; got %v", cfg.Tests)
		}
	})

	t.Run("config file", func(t *testing.T) {
		cfg, err := execute(t, "--config", cfgFile)
		if err != nil {
			t.Fatal(err)
		}

		if cfg.Passes != 3 || cfg.Arena.Segments != 4 || cfg.Arena.Size != "64M" {
			t.Fatalf("expected config file settings; got %+v", cfg)
		}

		if len(cfg.Tests) != 2 || cfg.Tests[0] != 1 {
			t.Fatalf("expected tests [1 2]; got %v", cfg.Tests)
		}

		exp := errinfo.DefaultWeights()
		exp.Divisor = 10
		if cfg.Weights != exp {
			t.Fatalf("expected weights %+v; got %+v", exp, cfg.Weights)
		}
	})

	t.Run("env overrides config file", func(t *testing.T) {
		t.Setenv("MEMTEST_PASSES", "5")
		t.Setenv("MEMTEST_ARENA_SIZE", "1G")

		cfg, err := execute(t, "--config", cfgFile)
		if err != nil {
			t.Fatal(err)
		}

		if cfg.Passes != 5 || cfg.Arena.Size != "1G" {
			t.Fatalf("expected env settings; got %+v", cfg)
		}
	})

	t.Run("cmdline overrides flags", func(t *testing.T) {
		cfg, err := execute(t, "--passes", "2", "--beep", "--cmdline", "passes=7 nobeep tests=4")
		if err != nil {
			t.Fatal(err)
		}

		if cfg.Passes != 7 || cfg.Beep || len(cfg.Tests) != 1 || cfg.Tests[0] != 4 {
			t.Fatalf("expected cmdline settings; got %+v", cfg)
		}
	})

	specs := [][]string{
		{"--mode", "bogus"},
		{"--config", filepath.Join(dir, "missing.yaml")},
		{"--cmdline", "cpus=many"},
		{"--window", "3"},
	}

	for specIndex, args := range specs {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("[spec %d] expected an error for args %v", specIndex, args)
		}
	}
}

func TestSetupLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "memtest.log")

	logger, f, err := setupLogger(config.Log{Level: "debug", File: logFile, JSON: true}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}

	logger.WithField("passes", 2).Debug("run complete")
	if err = f.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}

	var entry map[string]interface{}
	if err = json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("expected a JSON log entry; got %q", data)
	}

	if entry["msg"] != "run complete" || entry["passes"] != float64(2) {
		t.Fatalf("unexpected log entry %v", entry)
	}

	var stderr bytes.Buffer
	logger, f, err = setupLogger(config.Log{Level: "warn"}, &stderr)
	if err != nil || f != nil {
		t.Fatalf("expected logger without a file; got %v, %v", f, err)
	}

	logger.Info("hidden")
	logger.Warn("shown")
	if out := stderr.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("expected only warnings to be logged; got %q", out)
	}
}

func testSession(t *testing.T) *kmain.Session {
	t.Helper()

	m, kerr := memmap.New(memmap.Range{PhysStartPage: 0x100, PhysEndPage: 0x110, Start: 0x1000, End: 0x10ffc})
	if kerr != nil {
		t.Fatal(kerr)
	}

	cons := console.NewVgaTextConsole(console.DefaultColumns, console.DefaultRows)
	if err := cons.DriverInit(nil); err != nil {
		t.Fatal(err)
	}

	tests := seq.Standard()
	agg := errinfo.New(m, display.NewScreen(cons), tests.BadRAMSafe(), errinfo.Config{MaxPatterns: 10, Weights: errinfo.DefaultWeights()})
	agg.StartRun()

	return &kmain.Session{
		Result: runner.Result{Passes: 1, Elapsed: time.Minute, State: agg.Snapshot()},
		Tests:  tests,
		Map:    m,
		Errors: agg,
	}
}

func TestWriteReports(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Report{
		YAML:  filepath.Join(dir, "report.yaml"),
		Image: filepath.Join(dir, "failures.png"),
	}

	if err := writeReports(cfg, testSession(t)); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(cfg.YAML)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "passes: 1") {
		t.Fatalf("unexpected YAML report:\n%s", data)
	}

	png, err := os.ReadFile(cfg.Image)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("expected a PNG failure map")
	}

	cfg.YAML = filepath.Join(dir, "missing", "report.yaml")
	if err = writeReports(cfg, testSession(t)); err == nil {
		t.Fatal("expected an error when the report directory does not exist")
	}

	if err = writeReports(config.Report{}, testSession(t)); err != nil {
		t.Fatalf("expected no error when reports are disabled; got %v", err)
	}
}
