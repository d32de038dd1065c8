package seq

import (
	"testing"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"memtest/kernel/mem"
	"memtest/kernel/mem/memmap"
	"memtest/kernel/memtest/algo"
	"memtest/kernel/memtest/errinfo"
	"memtest/kernel/sync"
)

type countingReporter struct {
	count int
}

func (r *countingReporter) Record(errinfo.Event) { r.count++ }

type fakeContext struct {
	pass  int
	fade  time.Duration
	slept time.Duration
}

func (c *fakeContext) Pass() int                { return c.pass }
func (c *fakeContext) FadeDelay() time.Duration { return c.fade }
func (c *fakeContext) Sleep(env *algo.Env, d time.Duration) {
	for s := time.Duration(0); s < d; s += time.Second {
		env.Tick()
	}
	c.slept += d
}

// mapWords maps an anonymous page aligned region that holds words words. The
// region is unmapped once the test completes.
func mapWords(t *testing.T, words int) []uint32 {
	t.Helper()

	pageSize := unix.Getpagesize()
	size := (words*int(mem.WordSize) + pageSize - 1) &^ (pageSize - 1)
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		t.Fatalf("mapping test memory: %v", err)
	}
	t.Cleanup(func() { _ = unix.Munmap(region) })

	return mem.Words(uintptr(unsafe.Pointer(&region[0])), uint64(words))
}

func testMap(t *testing.T, words int) ([]uint32, *memmap.Map) {
	t.Helper()

	buf := mapWords(t, words)

	start := mem.AddrOf(buf, 0)
	m, err := memmap.New(memmap.Range{
		PhysStartPage: 0x10,
		PhysEndPage:   0x20,
		Start:         start,
		End:           start + uintptr(words-1)*uintptr(mem.WordSize),
	})
	if err != nil {
		t.Fatal(err)
	}
	return buf, m
}

func TestStandardSequence(t *testing.T) {
	s := Standard()
	if len(s) != 11 {
		t.Fatalf("expected 11 tests; got %d", len(s))
	}

	if got := s.Enabled(); got != len(s) {
		t.Errorf("expected all tests to be enabled by default; got %d", got)
	}

	// Walking ones reports address line faults and block move cannot
	// attribute a failure to a single word.
	exp := []bool{false, true, true, true, true, true, false, true, true, true, true}
	for i, safe := range s.BadRAMSafe() {
		if safe != exp[i] {
			t.Errorf("expected BadRAM safety of test %d (%s) to be %t", i, s[i].Name, exp[i])
		}
	}

	for i, single := range []int{0, 1, 10} {
		if s[single].Mode != Single {
			t.Errorf("[spec %d] expected test %d to run on a single processor", i, single)
		}
	}
}

func TestEstimates(t *testing.T) {
	const (
		words  = 4096
		window = 256
	)

	for index, entry := range Standard() {
		buf, m := testMap(t, words)

		var (
			ticks uint64
			rep   = &countingReporter{}
			ctx   = &fakeContext{pass: 1, fade: 2 * time.Second}
			env   = &algo.Env{
				NumCPUs: 1,
				Map:     m,
				Window:  window,
				Tick:    func() { ticks++ },
				Cancel:  &sync.Flag{},
				Report:  rep,
				Rand:    algo.NewPCG(1, 1),
			}
		)

		if err := entry.Run(ctx, env, 1); err != nil {
			t.Errorf("[test %d] unexpected error: %v", index, err)
			continue
		}

		if rep.count != 0 {
			t.Errorf("[test %d] expected no errors on healthy memory; got %d", index, rep.count)
		}

		exp := entry.Estimate(1, ctx.fade).Ticks(env.SlicedTicks(), env.UnslicedTicks())
		if ticks != exp {
			t.Errorf("[test %d] expected %s to tick %d times; got %d", index, entry.Name, exp, ticks)
		}

		_ = buf[0]
	}
}

func TestIter(t *testing.T) {
	e := Entry{Iterations: 30}

	specs := []struct {
		pass, scale, exp int
	}{
		{0, 0, 10},
		{1, 0, 30},
		{1, 50, 15},
		{0, 5, 1},
		{2, 200, 60},
	}

	for specIndex, spec := range specs {
		if got := e.Iter(spec.pass, spec.scale); got != spec.exp {
			t.Errorf("[spec %d] expected %d iterations; got %d", specIndex, spec.exp, got)
		}
	}
}

func TestSelect(t *testing.T) {
	s := Standard()

	if err := s.Select([]int{3, 7}); err != nil {
		t.Fatal(err)
	}
	if s.Enabled() != 2 || !s[3].Enabled || !s[7].Enabled {
		t.Fatalf("expected only tests 3 and 7 to be enabled")
	}

	if err := s.Select(nil); err != nil {
		t.Fatal(err)
	}
	if s.Enabled() != len(s) {
		t.Fatalf("expected an empty selection to enable every test")
	}

	if err := s.Select([]int{11}); err != errUnknownTest {
		t.Fatalf("expected errUnknownTest; got %v", err)
	}
}

func TestCancelledSequence(t *testing.T) {
	_, m := testMap(t, 1024)

	env := &algo.Env{
		NumCPUs: 1,
		Map:     m,
		Window:  256,
		Cancel:  &sync.Flag{},
		Report:  &countingReporter{},
		Rand:    algo.NewPCG(1, 1),
	}
	env.Cancel.Set()

	ctx := &fakeContext{fade: time.Hour}
	for index, entry := range Standard() {
		if err := entry.Run(ctx, env, 3); err != nil {
			t.Errorf("[test %d] unexpected error: %v", index, err)
		}
	}

	if ctx.slept != 0 {
		t.Errorf("expected cancelled bit fade test not to sleep; slept %v", ctx.slept)
	}
}

func TestCPUModeString(t *testing.T) {
	if Single.String() != "single" || Parallel.String() != "parallel" {
		t.Fatal("unexpected CPU mode names")
	}
}
