package main

import (
	"fmt"
	"io"
	"os"

	"memtest/kernel/config"
	"memtest/kernel/kmain"
	"memtest/report"
)

// writeReports writes the reports that are enabled in cfg.
func writeReports(cfg config.Report, s *kmain.Session) error {
	if cfg.YAML == "" && cfg.Image == "" {
		return nil
	}

	summary := report.New(s.Result, s.Tests, s.Map, s.Errors)

	if cfg.YAML != "" {
		if err := writeFile(cfg.YAML, func(w io.Writer) error { return report.WriteYAML(w, summary) }); err != nil {
			return err
		}
	}

	if cfg.Image != "" {
		if err := writeFile(cfg.Image, func(w io.Writer) error { return report.WriteFailureMap(w, summary) }); err != nil {
			return err
		}
	}

	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}

	if err = write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return f.Close()
}
