// Package report exports the outcome of a run as a YAML summary and as a PNG
// map that shows where in physical memory the failures were found.
package report

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"memtest/kernel/mem"
	"memtest/kernel/mem/memmap"
	"memtest/kernel/memtest/badram"
	"memtest/kernel/memtest/errinfo"
	"memtest/kernel/memtest/runner"
	"memtest/kernel/memtest/seq"
)

// PatternSource provides the BadRAM patterns collected during a run.
type PatternSource interface {
	Patterns() []badram.Pattern
	BadRAM() string
}

// Memory describes the tested memory.
type Memory struct {
	Size      string `yaml:"size"`
	Ranges    int    `yaml:"ranges"`
	FirstPage string `yaml:"first_page"`
	LastPage  string `yaml:"last_page"`
}

// Errors summarizes the error aggregate.
type Errors struct {
	Total      uint64 `yaml:"total"`
	Corrected  uint64 `yaml:"ecc_corrected"`
	Confidence int    `yaml:"confidence"`
	Lowest     string `yaml:"lowest,omitempty"`
	Highest    string `yaml:"highest,omitempty"`
	Bits       string `yaml:"bits,omitempty"`
	MinBits    int    `yaml:"min_bits,omitempty"`
	MaxBits    int    `yaml:"max_bits,omitempty"`
	AvgBits    uint64 `yaml:"avg_bits,omitempty"`
	MaxRun     uint64 `yaml:"max_contiguous,omitempty"`
}

// Test holds the per-test error count.
type Test struct {
	Index   int    `yaml:"index"`
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
	Errors  uint64 `yaml:"errors"`
}

// Pattern is a BadRAM pattern rendered as hex strings.
type Pattern struct {
	Addr string `yaml:"addr"`
	Mask string `yaml:"mask"`
}

// Summary is the document written by WriteYAML.
type Summary struct {
	Passes    int       `yaml:"passes"`
	Aborted   bool      `yaml:"aborted"`
	Elapsed   string    `yaml:"elapsed"`
	Memory    Memory    `yaml:"memory"`
	Errors    Errors    `yaml:"errors"`
	Tests     []Test    `yaml:"tests"`
	BadRAM    string    `yaml:"badram,omitempty"`
	Patterns  []Pattern `yaml:"badram_patterns,omitempty"`
	Histogram []uint64  `yaml:"histogram,flow"`

	// BucketPages is the number of physical pages counted by each
	// histogram bucket.
	BucketPages uint64 `yaml:"bucket_pages"`

	firstPage uint64
}

// New builds a Summary from the result of a run.
func New(res runner.Result, tests seq.Sequence, m *memmap.Map, src PatternSource) *Summary {
	st := &res.State
	first, last := m.FirstPage(), m.LastPage()

	s := &Summary{
		Passes:  res.Passes,
		Aborted: res.Aborted,
		Elapsed: res.Elapsed.Round(time.Second).String(),
		Memory: Memory{
			Size:      m.Size().String(),
			Ranges:    m.Len(),
			FirstPage: hex(first),
			LastPage:  hex(last),
		},
		Errors: Errors{
			Total:      st.Errors,
			Corrected:  st.Corrected,
			Confidence: st.Confidence,
		},
		Histogram:   append([]uint64(nil), st.Histogram[:]...),
		BucketPages: (last - first + errinfo.HistogramBuckets - 1) / errinfo.HistogramBuckets,
		firstPage:   first,
	}

	if st.Errors != 0 {
		s.Errors.Lowest = hex(st.Low.Bytes())
		s.Errors.Highest = hex(st.High.Bytes())
		s.Errors.Bits = fmt.Sprintf("0x%08x", st.ErrorBits)
		s.Errors.MinBits = st.MinBits
		s.Errors.MaxBits = st.MaxBits
		s.Errors.AvgBits = st.AvgBits()
		s.Errors.MaxRun = st.MaxRun
	}

	for i := range tests {
		t := Test{Index: i, Name: tests[i].Name, Enabled: tests[i].Enabled}
		if i < len(st.TestErrors) {
			t.Errors = st.TestErrors[i]
		}
		s.Tests = append(s.Tests, t)
	}

	if src != nil {
		for _, p := range src.Patterns() {
			s.Patterns = append(s.Patterns, Pattern{Addr: hex(p.Addr), Mask: hex(p.Mask)})
		}
		if len(s.Patterns) != 0 {
			s.BadRAM = src.BadRAM()
		}
	}

	return s
}

// WriteYAML encodes s to w.
func WriteYAML(w io.Writer, s *Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}

func hex(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

// bucketAddr returns the physical address where bucket i starts.
func (s *Summary) bucketAddr(i int) uint64 {
	return (s.firstPage + uint64(i)*s.BucketPages) << mem.PageShift
}
