package errinfo

import (
	"strings"
	"time"

	"memtest/kernel"
	"memtest/kernel/kfmt"
	"memtest/kernel/mem"
	"memtest/kernel/mem/memmap"
	"memtest/kernel/memtest/badram"
	"memtest/kernel/memtest/display"
	"memtest/kernel/sync"
)

// Count rendering is throttled once this many errors have been reported.
const (
	countThrottleStart = 4096
	countThrottleEvery = 256
)

var (
	// sleepFn is mocked by tests.
	sleepFn = time.Sleep
)

// Beeper produces an audible tone.
type Beeper interface {
	Beep(hz int, d time.Duration)
}

// Config controls the aggregator.
type Config struct {
	// Mode selects how errors are rendered.
	Mode Mode

	// Beep enables an audible alert for the first error of every pass.
	Beep bool

	// Weights parameterize the confidence score.
	Weights ConfidenceWeights

	// MaxPatterns and Overflow configure the BadRAM pattern builder.
	MaxPatterns int
	Overflow    badram.OverflowPolicy

	// Hold is how long an internal error diagnostic stays on screen
	// before the run is stopped.
	Hold time.Duration
}

// Aggregator collects error events from every processor. All exported
// methods are safe for concurrent use.
type Aggregator struct {
	lock sync.Spinlock

	cfg        Config
	screen     display.Surface
	memMap     *memmap.Map
	badRAMSafe []bool
	patterns   *badram.Builder
	state      State

	headerDrawn bool

	beeper    Beeper
	pollInput func()
}

// New returns an aggregator for the memory described by m. badRAMSafe holds,
// for each test of the sequence, whether failures detected by that test may
// be used to build BadRAM patterns.
func New(m *memmap.Map, screen display.Surface, badRAMSafe []bool, cfg Config) *Aggregator {
	if cfg.Weights == (ConfidenceWeights{}) {
		cfg.Weights = DefaultWeights()
	}

	a := &Aggregator{
		cfg:        cfg,
		screen:     screen,
		memMap:     m,
		badRAMSafe: badRAMSafe,
		patterns:   badram.NewBuilder(cfg.MaxPatterns, cfg.Overflow),
	}
	a.state.reset(len(badRAMSafe))
	return a
}

// SetBeeper attaches the device used for audible alerts.
func (a *Aggregator) SetBeeper(b Beeper) {
	a.lock.Acquire()
	a.beeper = b
	a.lock.Release()
}

// SetInputHook registers a function that is invoked before each error line
// is printed so that long error bursts remain interruptible.
func (a *Aggregator) SetInputHook(fn func()) {
	a.lock.Acquire()
	a.pollInput = fn
	a.lock.Release()
}

// Mode returns the active display mode.
func (a *Aggregator) Mode() Mode {
	a.lock.Acquire()
	defer a.lock.Release()
	return a.cfg.Mode
}

// SetMode switches the display mode. The error area is redrawn the next
// time an error is reported.
func (a *Aggregator) SetMode(m Mode) {
	a.lock.Acquire()
	defer a.lock.Release()

	if m != a.cfg.Mode {
		a.cfg.Mode = m
		a.headerDrawn = false
	}
}

// StartRun clears all accumulated state.
func (a *Aggregator) StartRun() {
	a.lock.Acquire()
	defer a.lock.Release()

	a.state.reset(len(a.badRAMSafe))
	a.patterns.Reset()
	a.headerDrawn = false
}

// StartPass marks the beginning of a new pass.
func (a *Aggregator) StartPass(pass int) {
	a.lock.Acquire()
	a.state.Pass = pass
	a.state.PassErrors = 0
	a.lock.Release()
}

// StartTest marks the beginning of a new test.
func (a *Aggregator) StartTest(test int) {
	a.lock.Acquire()
	a.state.Test = test
	a.lock.Release()
}

// Snapshot returns a copy of the current aggregate.
func (a *Aggregator) Snapshot() State {
	a.lock.Acquire()
	defer a.lock.Release()
	return a.state.clone()
}

// Patterns returns the current BadRAM patterns.
func (a *Aggregator) Patterns() []badram.Pattern {
	a.lock.Acquire()
	defer a.lock.Release()
	return a.patterns.Patterns()
}

// BadRAM returns the current BadRAM patterns as a boot option.
func (a *Aggregator) BadRAM() string {
	a.lock.Acquire()
	defer a.lock.Release()
	return a.patterns.String()
}

// Record accounts for and renders a single error event.
func (a *Aggregator) Record(ev Event) {
	a.lock.Acquire()
	defer a.lock.Release()

	a.countError()
	a.histogram(ev)

	switch a.cfg.Mode {
	case ModeSummary:
		if !a.summarize(ev) {
			return
		}
	case ModeAddresses:
		if !a.printAddress(ev) {
			return
		}
	case ModePatterns:
		a.drawHeader()
		a.printPatterns(ev)
	case ModeNone:
		a.drawHeader()
	}

	a.printCounts()
}

// RecordECC reports an error signalled by the memory controller's ECC
// logic at the given physical location.
func (a *Aggregator) RecordECC(page, offset uint64, corrected bool, syndrome uint16, channel uint8, cpu int) {
	kind := KindECCUncorrected
	if corrected {
		kind = KindECCCorrected
	}

	a.Record(Event{
		Kind:     kind,
		Page:     page,
		Offset:   offset,
		Syndrome: syndrome,
		Channel:  channel,
		CPU:      cpu,
	})
}

// RecordParity reports a parity error at addr.
func (a *Aggregator) RecordParity(addr uintptr, cpu int) {
	page, offset, _ := a.memMap.PageOf(addr)
	a.Record(Event{Kind: KindParity, Addr: addr, Page: page, Offset: offset, CPU: cpu})
}

// Tick refreshes the error count and, in summary mode, the confidence
// score. It is called by the master processor on every progress tick.
func (a *Aggregator) Tick(afterPass bool) {
	a.lock.Acquire()
	defer a.lock.Release()

	if a.state.Errors == 0 {
		return
	}

	a.printCounts()
	if a.cfg.Mode != ModeSummary {
		return
	}

	a.state.Confidence = Confidence(&a.state, a.cfg.Weights, a.memMap.FirstPage(), a.memMap.LastPage(), a.state.Test, afterPass)
	a.screen.Dec(display.LineHeader, 25, uint64(a.state.Confidence), 3, true)
}

// InternalError reports a failure of the test engine itself. The diagnostic
// is highlighted and kept on screen for the configured hold interval before
// InternalError returns; the caller is expected to stop the run afterwards.
func (a *Aggregator) InternalError(err *kernel.Error) {
	a.lock.Acquire()
	s := a.screen
	s.Scroll()
	row := s.MsgLine()
	s.Print(row, 0, "  *** INTERNAL ERROR ***  ")
	s.Print(row, 26, "["+err.Module+"] "+err.Message)
	s.Paint(row, display.AttrWarning)
	a.lock.Release()

	kfmt.Logf(err.Module, "internal error: %s", err.Message)

	if a.cfg.Hold > 0 {
		sleepFn(a.cfg.Hold)
	}
}

// countError updates the error counters shared by every display mode.
func (a *Aggregator) countError() {
	if a.cfg.Beep && a.state.PassErrors == 0 && a.beeper != nil {
		a.beeper.Beep(600, 100*time.Millisecond)
		a.beeper.Beep(1000, 100*time.Millisecond)
	}

	// clear the "pass complete, no errors" banner
	if a.state.Pass > 0 && a.state.Errors == 0 {
		a.screen.Print(display.LineMsg, display.ColBanner, strings.Repeat(" ", len(display.PassBanner)))
	}

	a.state.Errors++
	a.state.PassErrors++
	if a.state.Test >= 0 && a.state.Test < len(a.state.TestErrors) {
		a.state.TestErrors[a.state.Test]++
	}
}

func (a *Aggregator) histogram(ev Event) {
	var page uint64
	switch ev.Kind {
	case KindECCCorrected, KindECCUncorrected, KindParity:
		page = ev.Page
	default:
		page, _, _ = a.memMap.PageOf(ev.Addr)
	}

	first, last := a.memMap.FirstPage(), a.memMap.LastPage()
	if page < first || page >= last {
		return
	}

	a.state.Histogram[(page-first)*HistogramBuckets/(last-first)]++
}

// locate returns the physical page and offset of an event.
func (a *Aggregator) locate(ev Event) (page, offset uint64) {
	switch ev.Kind {
	case KindECCCorrected, KindECCUncorrected, KindParity:
		return ev.Page, ev.Offset
	default:
		page, offset, _ = a.memMap.PageOf(ev.Addr)
		return page, offset
	}
}

func (a *Aggregator) drawHeader() bool {
	if a.headerDrawn {
		return false
	}

	a.screen.ClearScroll()
	a.headerDrawn = true
	return true
}

// summarize folds ev into the statistics shown in summary mode. It returns
// false if the event must not be rendered.
func (a *Aggregator) summarize(ev Event) bool {
	s := &a.state

	if ev.Kind == KindParity {
		return false
	}

	if ev.Kind == KindECCCorrected {
		s.Corrected++
		a.drawSummaryHeader()
		a.screen.Dec(display.LineHeader+6, 25, s.Corrected, 8, true)
		return true
	}

	var (
		changed      bool
		page, offset = a.locate(ev)
		addr         = Addr{Page: page, Offset: offset}
	)

	if !s.haveAddr || addr.less(s.Low) {
		s.Low = addr
		changed = true
	}
	if !s.haveAddr || s.High.less(addr) {
		s.High = addr
		changed = true
	}
	s.haveAddr = true

	if ev.Kind != KindECCUncorrected {
		xor := ev.Xor
		if ev.Kind == KindAddress {
			xor = ev.Expected ^ ev.Actual
		}

		n := popcount(xor)
		s.TotalBits += uint64(n)
		if n > s.MaxBits {
			s.MaxBits = n
			changed = true
		}
		if n < s.MinBits {
			s.MinBits = n
			changed = true
		}
		if xor&^s.ErrorBits != 0 {
			changed = true
		}
		s.ErrorBits |= xor

		if s.haveLast && (ev.Addr == s.lastAddr+uintptr(mem.WordSize) || ev.Addr == s.lastAddr-uintptr(mem.WordSize)) {
			s.run++
		} else {
			s.run = 1
		}
		if s.run > s.MaxRun {
			s.MaxRun = s.run
			changed = true
		}
		s.lastAddr, s.haveLast = ev.Addr, true
	}

	if a.drawSummaryHeader() || changed {
		a.drawSummary()
	}

	return true
}

func (a *Aggregator) drawSummaryHeader() bool {
	if !a.drawHeader() {
		return false
	}

	s := a.screen
	s.Print(display.LineHeader+0, 1, "Error Confidence Value:")
	s.Print(display.LineHeader+1, 1, "  Lowest Error Address:")
	s.Print(display.LineHeader+2, 1, " Highest Error Address:")
	s.Print(display.LineHeader+3, 1, "    Bits in Error Mask:")
	s.Print(display.LineHeader+4, 1, " Bits in Error - Total:")
	s.Print(display.LineHeader+4, 29, "Min:    Max:    Avg:")
	s.Print(display.LineHeader+5, 1, " Max Contiguous Errors:")
	s.Print(display.LineHeader+6, 1, "Corrected ECC Errors:")
	s.Print(display.LineHeader+0, 64, "Test  Errors")
	return true
}

func (a *Aggregator) drawSummary() {
	var (
		s  = a.screen
		st = &a.state
	)

	a.printAddr(display.LineHeader+1, 25, st.Low)
	a.printAddr(display.LineHeader+2, 25, st.High)
	s.Hex(display.LineHeader+3, 25, uint64(st.ErrorBits), 8)
	s.Dec(display.LineHeader+4, 25, uint64(popcount(st.ErrorBits)), 2, true)
	s.Dec(display.LineHeader+4, 34, uint64(st.MinBits), 2, true)
	s.Dec(display.LineHeader+4, 42, uint64(st.MaxBits), 2, true)
	s.Dec(display.LineHeader+4, 50, st.AvgBits(), 2, true)
	s.Dec(display.LineHeader+5, 25, st.MaxRun, 7, true)

	for i, n := range st.TestErrors {
		row := display.LineHeader + 1 + i
		if row > display.LastScrollLine {
			break
		}
		s.Dec(row, 66, uint64(i), 2, false)
		s.Dec(row, 68, n, 8, false)
	}
}

// printAddr renders a failing address as "page offset - size MB".
func (a *Aggregator) printAddr(row, col int, addr Addr) {
	s := a.screen
	s.Hex(row, col, addr.Page, 8)
	s.Hex(row, col+8, addr.Offset, 3)
	s.Print(row, col+11, " -      . MB")
	s.Dec(row, col+14, addr.Page>>8, 5, true)
	s.Dec(row, col+20, ((addr.Page&0xff)*10)>>8, 1, false)
}

// printAddress renders ev as a single line in address mode. It returns false
// if the event duplicates the previous one.
func (a *Aggregator) printAddress(ev Event) bool {
	st := &a.state

	dataKind := ev.Kind == KindData || ev.Kind == KindAddress
	if dataKind && st.haveLast && ev.Addr == st.lastAddr && ev.Xor == st.lastXor {
		return false
	}

	if a.drawHeader() {
		a.screen.Print(display.LineHeader, 0,
			"Tst  Pass   Failing Address          Good       Bad     Err-Bits  Count CPU")
		a.screen.Print(display.LineHeader+1, 0,
			"---  ----  -----------------------  --------  --------  --------  ----- ----")
	}

	if a.pollInput != nil {
		a.pollInput()
	}

	s := a.screen
	s.Scroll()
	row := s.MsgLine()

	page, offset := a.locate(ev)
	s.Dec(row, 0, uint64(st.Test+1), 3, false)
	s.Dec(row, 4, uint64(st.Pass), 5, false)
	a.printAddr(row, 11, Addr{Page: page, Offset: offset})

	switch ev.Kind {
	case KindECCCorrected, KindECCUncorrected:
		if ev.Kind == KindECCCorrected {
			s.Print(row, 36, "corrected           ")
		} else {
			s.Print(row, 36, "uncorrected         ")
		}
		s.Hex(row, 60, uint64(ev.Syndrome), 4)
		s.Print(row, 68, "ECC")
		s.Dec(row, 74, uint64(ev.Channel), 2, false)
	case KindParity:
		s.Print(row, 36, "Parity error detected                ")
	default:
		s.Hex(row, 36, uint64(ev.Expected), 8)
		s.Hex(row, 46, uint64(ev.Actual), 8)
		s.Hex(row, 56, uint64(ev.Xor), 8)
		s.Dec(row, 66, st.Errors, 5, false)
		s.Dec(row, 74, uint64(ev.CPU), 2, true)
		st.lastAddr, st.lastXor, st.haveLast = ev.Addr, ev.Xor, true
	}

	return true
}

// printPatterns feeds ev into the BadRAM pattern builder and prints the
// pattern list whenever it changes.
func (a *Aggregator) printPatterns(ev Event) {
	st := &a.state
	if st.Test < 0 || st.Test >= len(a.badRAMSafe) || !a.badRAMSafe[st.Test] {
		return
	}
	if ev.Kind != KindData && ev.Kind != KindAddress {
		return
	}

	page, offset := a.locate(ev)
	if !a.patterns.Insert(Addr{Page: page, Offset: offset}.Bytes()) {
		return
	}

	if a.pollInput != nil {
		a.pollInput()
	}

	for _, line := range a.patterns.Lines(display.Columns) {
		a.screen.Scroll()
		a.screen.Print(a.screen.MsgLine(), 0, line)
	}
}

// printCounts refreshes the total error count. Once many errors have been
// reported the count is only refreshed every countThrottleEvery errors.
func (a *Aggregator) printCounts() {
	st := &a.state
	if st.Errors > countThrottleStart && st.Errors%countThrottleEvery != 0 {
		return
	}

	a.screen.Dec(display.LineInfo, 72, st.Errors, 6, false)

	if a.cfg.Mode == ModeAddresses || a.cfg.Mode == ModePatterns {
		a.screen.Paint(a.screen.MsgLine(), display.AttrAlert)
	}
}
