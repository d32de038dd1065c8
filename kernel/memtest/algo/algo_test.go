package algo

import (
	gosync "sync"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"

	"memtest/kernel/mem"
	"memtest/kernel/mem/memmap"
	"memtest/kernel/memtest/errinfo"
	"memtest/kernel/sync"
)

type recorder struct {
	mu     gosync.Mutex
	events []errinfo.Event
}

func (r *recorder) Record(ev errinfo.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

type patternLog struct {
	patterns []uint32
	offsets  []int
	cleared  int
}

func (l *patternLog) ShowPattern(p uint32) { l.patterns = append(l.patterns, p) }
func (l *patternLog) ShowModuloPattern(p uint32, offset int) {
	l.patterns = append(l.patterns, p)
	l.offsets = append(l.offsets, offset)
}
func (l *patternLog) ClearPattern() { l.cleared++ }

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

// testArena returns a cache line aligned buffer of words words together
// with a map describing it.
func testArena(t *testing.T, words int) ([]uint32, *memmap.Map) {
	t.Helper()

	buf := mapWords(t, words)

	start := mem.AddrOf(buf, 0)
	m, err := memmap.New(memmap.Range{
		PhysStartPage: 0x100,
		PhysEndPage:   0x100 + uint64(words)*uint64(mem.WordSize)/uint64(mem.PageSize) + 2,
		Start:         start,
		End:           start + uintptr(words-1)*uintptr(mem.WordSize),
	})
	if err != nil {
		t.Fatal(err)
	}

	return buf, m
}

func testEnv(m *memmap.Map, window uint64, tick func()) (*Env, *recorder) {
	rec := &recorder{}
	return &Env{
		NumCPUs: 1,
		Map:     m,
		Window:  window,
		Tick:    tick,
		Cancel:  &sync.Flag{},
		Report:  rec,
		Rand:    NewPCG(1, 2),
	}, rec
}

// corruptAt returns a tick hook that runs fn right before the n-th window
// is processed.
func corruptAt(n int, fn func()) func() {
	var ticks int
	return func() {
		if ticks++; ticks == n {
			fn()
		}
	}
}

func expectSingleEvent(t *testing.T, rec *recorder, kind errinfo.Kind, addr uintptr, good uint32) {
	t.Helper()

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event; got %d: %+v", len(rec.events), rec.events)
	}

	ev := rec.events[0]
	if ev.Kind != kind {
		t.Errorf("expected event kind %s; got %s", kind, ev.Kind)
	}
	if ev.Addr != addr {
		t.Errorf("expected event address 0x%x; got 0x%x", addr, ev.Addr)
	}
	if ev.Expected != good {
		t.Errorf("expected event good value 0x%x; got 0x%x", good, ev.Expected)
	}
}

func TestMovingInversions(t *testing.T) {
	const (
		words  = 256
		window = 64
		p1     = 0x0f0f0f0f
		p2     = 0xf0f0f0f0
	)

	t.Run("clean", func(t *testing.T) {
		buf, m := testArena(t, words)
		display := &patternLog{}
		env, rec := testEnv(m, window, nil)
		env.Display = display

		if err := MovingInversions(env, 3, p1, p2); err != nil {
			t.Fatal(err)
		}

		if len(rec.events) != 0 {
			t.Fatalf("expected no events; got %+v", rec.events)
		}

		for i, v := range buf {
			if v != p1 {
				t.Fatalf("expected word %d to be restored to 0x%x; got 0x%x", i, uint32(p1), v)
			}
		}

		if len(display.patterns) != 1 || display.patterns[0] != p1 {
			t.Errorf("expected pattern 0x%x to be displayed; got %v", uint32(p1), display.patterns)
		}
	})

	t.Run("corrupted word", func(t *testing.T) {
		buf, m := testArena(t, words)
		// The 5th window is the first one of the bottom-up walk.
		env, rec := testEnv(m, window, corruptAt(5, func() { buf[3] = 0xdeadbeef }))

		if err := MovingInversions(env, 1, p1, p2); err != nil {
			t.Fatal(err)
		}

		expectSingleEvent(t, rec, errinfo.KindData, mem.AddrOf(buf, 3), p1)
		if got := rec.events[0].Actual; got != 0xdeadbeef {
			t.Errorf("expected bad value 0xdeadbeef; got 0x%x", got)
		}
		if got, exp := rec.events[0].Xor, uint32(p1^0xdeadbeef); got != exp {
			t.Errorf("expected xor 0x%x; got 0x%x", exp, got)
		}
	})

	t.Run("top-down check", func(t *testing.T) {
		buf, m := testArena(t, words)
		// The 9th window is the first one of the top-down walk.
		env, rec := testEnv(m, window, corruptAt(9, func() { buf[words-1] = 0 }))

		if err := MovingInversions(env, 1, p1, p2); err != nil {
			t.Fatal(err)
		}

		expectSingleEvent(t, rec, errinfo.KindData, mem.AddrOf(buf, words-1), p2)
	})
}

func TestMovingInversionsRandom(t *testing.T) {
	const (
		words  = 512
		window = 128
	)

	t.Run("clean", func(t *testing.T) {
		buf, m := testArena(t, words)
		env, rec := testEnv(m, window, nil)

		if err := MovingInversionsRandom(env, 521288629, 362436069); err != nil {
			t.Fatal(err)
		}

		if len(rec.events) != 0 {
			t.Fatalf("expected no events; got %+v", rec.events)
		}

		ref := NewPCG(521288629, 362436069)
		for i, v := range buf {
			if exp := ref.Uint32(); v != exp {
				t.Fatalf("expected word %d to hold 0x%x; got 0x%x", i, exp, v)
			}
		}
	})

	t.Run("corrupted word", func(t *testing.T) {
		buf, m := testArena(t, words)
		var good uint32
		env, rec := testEnv(m, window, corruptAt(words/window+1, func() {
			good = buf[100]
			buf[100] = ^good
		}))

		if err := MovingInversionsRandom(env, 7, 11); err != nil {
			t.Fatal(err)
		}

		expectSingleEvent(t, rec, errinfo.KindData, mem.AddrOf(buf, 100), good)
	})
}

func TestMovingInversions32(t *testing.T) {
	const (
		words  = 200
		window = 40
	)

	specs := []struct {
		p1, lb, hb, sval uint32
		off              int
		expFn            func(phase int) uint32
	}{
		{1, 1, 0x80000000, 0, 0, func(phase int) uint32 { return 1 << uint(phase) }},
		{1 << 5, 1, 0x80000000, 0, 5, func(phase int) uint32 { return 1 << uint(phase) }},
		{^uint32(1 << 31), 0xfffffffe, 0x7fffffff, 1, 31, func(phase int) uint32 { return ^uint32(1 << uint(phase)) }},
	}

	for specIndex, spec := range specs {
		buf, m := testArena(t, words)
		env, rec := testEnv(m, window, nil)

		if err := MovingInversions32(env, 2, spec.p1, spec.lb, spec.hb, spec.sval, spec.off); err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
			continue
		}

		if len(rec.events) != 0 {
			t.Errorf("[spec %d] expected no events; got %+v", specIndex, rec.events)
			continue
		}

		for i, v := range buf {
			phase := (spec.off + i%window) % 32
			if exp := spec.expFn(phase); v != exp {
				t.Errorf("[spec %d] expected word %d to hold 0x%x; got 0x%x", specIndex, i, exp, v)
				break
			}
		}
	}

	t.Run("corrupted word", func(t *testing.T) {
		buf, m := testArena(t, words)
		env, rec := testEnv(m, window, corruptAt(words/window+1, func() { buf[41] ^= 0x10 }))

		if err := MovingInversions32(env, 1, 1, 1, 0x80000000, 0, 0); err != nil {
			t.Fatal(err)
		}

		expectSingleEvent(t, rec, errinfo.KindData, mem.AddrOf(buf, 41), 2)
	})
}

func TestModulo(t *testing.T) {
	const (
		words  = 400
		window = 100
		p1     = 0x12345678
		p2     = ^uint32(p1)
	)

	for offset := 0; offset < ModuloStride; offset += 7 {
		buf, m := testArena(t, words)
		display := &patternLog{}
		env, rec := testEnv(m, window, nil)
		env.Display = display

		if err := Modulo(env, offset, 2, p1, p2); err != nil {
			t.Fatalf("[offset %d] unexpected error: %v", offset, err)
		}

		if len(rec.events) != 0 {
			t.Fatalf("[offset %d] expected no events; got %+v", offset, rec.events)
		}

		for i, v := range buf {
			exp := p2
			if (i%window)%ModuloStride == offset {
				exp = p1
			}
			if v != exp {
				t.Fatalf("[offset %d] expected word %d to hold 0x%x; got 0x%x", offset, i, exp, v)
			}
		}

		if len(display.offsets) != 1 || display.offsets[0] != offset {
			t.Errorf("[offset %d] expected offset to be displayed; got %v", offset, display.offsets)
		}
	}

	t.Run("corrupted word", func(t *testing.T) {
		buf, m := testArena(t, words)
		env, rec := testEnv(m, window, corruptAt(words/window+1, func() { buf[window+3] = 0 }))

		if err := Modulo(env, 3, 2, p1, p2); err != nil {
			t.Fatal(err)
		}

		expectSingleEvent(t, rec, errinfo.KindData, mem.AddrOf(buf, window+3), p1)
	})
}

func TestBlockMove(t *testing.T) {
	const (
		words  = 512
		window = 128
	)

	t.Run("clean", func(t *testing.T) {
		buf, m := testArena(t, words)
		env, rec := testEnv(m, window, nil)

		if err := BlockMove(env, 3); err != nil {
			t.Fatal(err)
		}

		if len(rec.events) != 0 {
			t.Fatalf("expected no events; got %+v", rec.events)
		}

		for i := 0; i < len(buf); i += 2 {
			if buf[i] != buf[i+1] {
				t.Fatalf("expected words %d and %d to match; got 0x%x and 0x%x", i, i+1, buf[i], buf[i+1])
			}
		}
	})

	t.Run("corrupted pair", func(t *testing.T) {
		buf, m := testArena(t, words)
		// Windows 9..12 belong to the check phase.
		env, rec := testEnv(m, window, corruptAt(2*words/window+1, func() { buf[2] ^= 0x100 }))

		if err := BlockMove(env, 1); err != nil {
			t.Fatal(err)
		}

		expectSingleEvent(t, rec, errinfo.KindData, mem.AddrOf(buf, 2), buf[2])
		if got := rec.events[0].Actual; got != buf[3] {
			t.Errorf("expected bad value to be the pair's second word 0x%x; got 0x%x", buf[3], got)
		}
	})

	t.Run("short windows", func(t *testing.T) {
		buf, m := testArena(t, 64)
		for i := range buf {
			buf[i] = uint32(i)
		}
		env, rec := testEnv(m, 16, nil)

		if err := BlockMove(env, 1); err != nil {
			t.Fatal(err)
		}

		if len(rec.events) != 0 {
			t.Fatalf("expected short windows to be skipped; got %+v", rec.events)
		}
		for i, v := range buf {
			if v != uint32(i) {
				t.Fatalf("expected word %d to be untouched; got 0x%x", i, v)
			}
		}
	})
}

func TestBlockInit(t *testing.T) {
	specs := []struct {
		in, exp uint32
	}{
		{0, 1},
		{1, 2},
		{0x40000000, 0x80000000},
		{0x80000000, 0},
	}

	for specIndex, spec := range specs {
		if got := nextBlockValue(spec.in); got != spec.exp {
			t.Errorf("[spec %d] expected 0x%x; got 0x%x", specIndex, spec.exp, got)
		}
	}
}

func TestOwnAddress(t *testing.T) {
	const words = 256

	for _, parallel := range []bool{false, true} {
		buf, m := testArena(t, words)
		env, rec := testEnv(m, 64, corruptAt(words/64+2, func() { buf[70] = 0 }))

		if err := OwnAddress(env, parallel); err != nil {
			t.Fatal(err)
		}

		addr := mem.AddrOf(buf, 70)
		expectSingleEvent(t, rec, errinfo.KindAddress, addr, uint32(addr))

		if got := buf[71]; got != uint32(mem.AddrOf(buf, 71)) {
			t.Errorf("expected word to hold its own address; got 0x%x", got)
		}
	}
}

func TestWalkingAddress(t *testing.T) {
	const words = 2 * walkStride

	_, m := testArena(t, words)
	display := &patternLog{}
	env, rec := testEnv(m, words, nil)
	env.Display = display

	if err := WalkingAddress(env); err != nil {
		t.Fatal(err)
	}

	if len(rec.events) != 0 {
		t.Fatalf("expected no aliasing on regular memory; got %+v", rec.events)
	}

	if len(display.patterns) != 2 {
		t.Errorf("expected 2 patterns to be displayed; got %v", display.patterns)
	}
}

func TestBitFade(t *testing.T) {
	buf, m := testArena(t, 128)
	env, rec := testEnv(m, 32, nil)

	if err := BitFadeFill(env, ^uint32(0)); err != nil {
		t.Fatal(err)
	}

	buf[17] = 0xfffffffe

	if err := BitFadeCheck(env, ^uint32(0)); err != nil {
		t.Fatal(err)
	}

	expectSingleEvent(t, rec, errinfo.KindData, mem.AddrOf(buf, 17), ^uint32(0))
	if got := rec.events[0].Xor; got != 1 {
		t.Errorf("expected xor 0x1; got 0x%x", got)
	}
}

func TestCancel(t *testing.T) {
	_, m := testArena(t, 1024)

	var (
		ticks int
		env   *Env
	)
	env, rec := testEnv(m, 64, func() {
		if ticks++; ticks == 2 {
			env.Cancel.Set()
		}
	})

	if err := MovingInversions(env, 5, 0, ^uint32(0)); err != nil {
		t.Fatal(err)
	}

	if ticks != 2 {
		t.Errorf("expected the test to stop after 2 ticks; got %d", ticks)
	}

	if len(rec.events) != 0 {
		t.Errorf("expected no events; got %+v", rec.events)
	}
}

func TestParallel(t *testing.T) {
	const (
		numCPUs = 4
		words   = 4096
	)

	specs := []struct {
		name string
		fn   func(env *Env) error
	}{
		{"moving inversions", func(env *Env) error {
			if err := MovingInversions(env, 2, 0xaaaaaaaa, 0x55555555); err != nil {
				return err
			}
			return nil
		}},
		{"block move", func(env *Env) error {
			if err := BlockMove(env, 2); err != nil {
				return err
			}
			return nil
		}},
		{"random", func(env *Env) error {
			if err := MovingInversionsRandom(env, 3, 5); err != nil {
				return err
			}
			return nil
		}},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			_, m := testArena(t, words)

			var (
				rec     = &recorder{}
				cancel  = &sync.Flag{}
				barrier = sync.NewBarrier(numCPUs, cancel)
				wg      gosync.WaitGroup
				errs    = make([]error, numCPUs)
			)

			for cpu := 0; cpu < numCPUs; cpu++ {
				wg.Add(1)
				go func(cpu int) {
					defer wg.Done()
					errs[cpu] = spec.fn(&Env{
						CPU:     cpu,
						NumCPUs: numCPUs,
						Map:     m,
						Window:  256,
						Cancel:  cancel,
						Barrier: barrier,
						Report:  rec,
						Rand:    NewPCG(0, 0),
					})
				}(cpu)
			}
			wg.Wait()

			for cpu, err := range errs {
				if err != nil {
					t.Errorf("cpu %d: unexpected error: %v", cpu, err)
				}
			}

			if len(rec.events) != 0 {
				t.Fatalf("expected no events; got %+v", rec.events)
			}
		})
	}
}

func TestPCG(t *testing.T) {
	a, b := NewPCG(10, 20), NewPCG(10, 20)
	first := make([]uint32, 8)
	for i := range first {
		first[i] = a.Uint32()
		if got := b.Uint32(); got != first[i] {
			t.Fatalf("expected generators with the same seeds to agree; got 0x%x and 0x%x", first[i], got)
		}
	}

	a.Seed(10, 20)
	for i, exp := range first {
		if got := a.Uint32(); got != exp {
			t.Fatalf("expected value %d after reseeding to be 0x%x; got 0x%x", i, exp, got)
		}
	}
}
