package runner

import (
	"strings"

	"memtest/kernel/mem"
	"memtest/kernel/memtest/display"
	"memtest/kernel/memtest/seq"
	"memtest/kernel/sync"
)

const (
	// colBar is the first column of the progress bars.
	colBar = display.ColMid + 11

	// colSpin is the column of the first processor's spinner.
	colSpin = 7
)

var spinner = [4]byte{'|', '/', '-', '\\'}

// progress holds the counters maintained by the master processor.
type progress struct {
	pass int
	next int

	testTicks, testTotal uint64
	passTicks, passTotal uint64

	startCycles uint64
	lastSec     uint64
}

func (p *progress) reset(now uint64) {
	*p = progress{next: -1, startCycles: now, lastSec: ^uint64(0)}
}

// tickFn returns the tick hook of processor cpu for the running test.
// Parallel tests synchronize all processors on every tick.
func (r *Runner) tickFn(cpu int, barrier *sync.Barrier, parallel bool) func() {
	spin := uint8(0)
	return func() {
		spin = (spin + 1) & 3
		if col := colSpin + cpu; col < display.Columns {
			r.screen.Place(display.LineStatus, col, spinner[spin])
		}

		if cpu == 0 {
			r.pollInput()
		}

		if parallel {
			barrier.Wait()
		}

		if cpu != 0 {
			return
		}

		r.applyModeRequest()
		r.tick()
	}
}

// tick advances the progress counters and refreshes the screen. It is
// executed by the master.
func (r *Runner) tick() {
	p := &r.progress
	p.testTicks++
	p.passTicks++

	r.drawBar(display.LineTestBar, p.testTicks, p.testTotal)
	r.drawBar(display.LinePass, p.passTicks, p.passTotal)
	r.drawTime()
	r.agg.Tick(p.pass > 0)
	r.refresh()
}

// drawStatic draws the parts of the screen that do not change during a run.
func (r *Runner) drawStatic() {
	s := r.screen

	s.Print(display.LineTitle, 0, "      Memtest (hosted)")
	s.Print(display.LinePass, display.ColMid, "| Pass   0%")
	s.Print(display.LineTestBar, display.ColMid, "| Test   0%")
	s.Print(display.LineTest, display.ColMid, "| Test #")
	s.Print(display.LineRange, display.ColMid, "| Testing: ")
	s.Print(display.LinePattern, display.ColMid, "| Pattern: ")
	s.Print(display.LineTime, display.ColTime-7, "Time: ")
	s.Print(display.LineTime+1, display.ColMid, "|"+strings.Repeat("-", display.Columns-display.ColMid-1))

	s.Print(display.LineCPU, 0, "CPUs:")
	s.Dec(display.LineCPU, 6, uint64(r.cfg.CPUs), 3, false)
	s.Print(display.LineStatus, 0, "State:")
	s.Print(display.LineInfo, 0, "Memory:")
	s.Print(display.LineInfo, 8, r.memMap.Size().String())
	s.Print(display.LineInfo, 50, "Pass:")
	s.Dec(display.LineInfo, 56, 0, 5, false)
	s.Print(display.LineInfo, 64, "Errors:")
	s.Dec(display.LineInfo, 72, 0, 6, false)

	first := mem.Size(r.memMap.FirstPage() << mem.PageShift)
	last := mem.Size(r.memMap.LastPage() << mem.PageShift)
	s.Print(display.LineRange, colBar, first.String()+" - "+last.String()+"  "+r.memMap.Size().String())

	s.Print(display.LineFooter, 0, "(ESC)exit  (s)skip test  (m)error display mode")
}

// drawTest shows the name of the test that is about to run.
func (r *Runner) drawTest(entry *seq.Entry) {
	s := r.screen

	s.Dec(display.LineTest, display.ColMid+8, uint64(r.test), 2, false)
	name := "[" + entry.Name + "]"
	if width := display.Columns - colBar; len(name) < width {
		name += strings.Repeat(" ", width-len(name))
	}
	s.Print(display.LineTest, colBar, name)
	r.ClearPattern()
	r.drawBar(display.LineTestBar, 0, 1)
}

// drawPass updates the pass counter and shows the pass banner if no errors
// were found so far.
func (r *Runner) drawPass(count uint64) {
	s := r.screen

	s.Dec(display.LineInfo, 56, uint64(r.progress.pass), 5, false)
	if count == 0 {
		s.Print(display.LineMsg, display.ColBanner, display.PassBanner)
	}
}

// drawBar renders a percentage followed by a bar of '#' chars.
func (r *Runner) drawBar(row int, ticks, total uint64) {
	if total == 0 {
		total = 1
	}

	pct := ticks * 100 / total
	if pct > 100 {
		pct = 100
	}

	n := int(pct * display.BarSize / 100)
	r.screen.Dec(row, display.ColMid+7, pct, 3, true)
	r.screen.Print(row, colBar, strings.Repeat("#", n)+strings.Repeat(" ", display.BarSize-n))
}

// drawTime shows the elapsed time as hhhh:mm:ss whenever the number of
// elapsed seconds changes.
func (r *Runner) drawTime() {
	sec := uint64(r.elapsed().Seconds())
	if sec == r.progress.lastSec {
		return
	}
	r.progress.lastSec = sec

	s := r.screen
	s.Dec(display.LineTime, display.ColTime, sec/3600, 4, true)
	s.Place(display.LineTime, display.ColTime+4, ':')
	s.Dec(display.LineTime, display.ColTime+5, (sec/60)%60/10, 1, false)
	s.Dec(display.LineTime, display.ColTime+6, (sec/60)%10, 1, false)
	s.Place(display.LineTime, display.ColTime+7, ':')
	s.Dec(display.LineTime, display.ColTime+8, (sec%60)/10, 1, false)
	s.Dec(display.LineTime, display.ColTime+9, sec%10, 1, false)
}

// ShowPattern displays the pattern used by the running test.
func (r *Runner) ShowPattern(p uint32) {
	r.screen.Hex(display.LinePattern, display.ColPattern, uint64(p), 8)
}

// ShowModuloPattern displays the pattern and offset of the modulo test.
func (r *Runner) ShowModuloPattern(p uint32, offset int) {
	r.ShowPattern(p)
	r.screen.Print(display.LinePattern, display.ColPattern+8, " - ")
	r.screen.Dec(display.LinePattern, display.ColPattern+11, uint64(offset), 2, false)
}

// ClearPattern blanks the pattern field.
func (r *Runner) ClearPattern() {
	r.screen.Print(display.LinePattern, display.ColPattern, "             ")
}
