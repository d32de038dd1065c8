package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"memtest/kernel/config"
	"memtest/kernel/kmain"
)

// setupLogger returns the run journal. If cfg.File is set, the returned
// file must be closed by the caller.
func setupLogger(cfg config.Log, stderr io.Writer) (*logrus.Logger, *os.File, error) {
	logger := logrus.New()
	logger.SetOutput(stderr)

	if cfg.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	switch strings.ToLower(cfg.Level) {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.File == "" {
		return logger, nil, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	logger.SetOutput(f)
	return logger, f, nil
}

// journal logs the outcome of a run.
func journal(logger *logrus.Logger, s *kmain.Session) {
	res := &s.Result
	entry := logger.WithFields(logrus.Fields{
		"passes":     res.Passes,
		"errors":     res.Errors,
		"aborted":    res.Aborted,
		"elapsed":    res.Elapsed.String(),
		"memory":     s.Map.Size().String(),
		"locked":     s.Locked,
		"confidence": res.State.Confidence,
	})

	if res.Errors == 0 {
		entry.Info("run complete")
	} else {
		entry.WithField("badram", s.Errors.BadRAM()).Warn("run complete with errors")
	}

	for i := range s.Tests {
		if !s.Tests[i].Enabled || i >= len(res.State.TestErrors) {
			continue
		}

		logger.WithFields(logrus.Fields{
			"test":   i,
			"name":   s.Tests[i].Name,
			"errors": res.State.TestErrors[i],
		}).Debug("test summary")
	}
}
