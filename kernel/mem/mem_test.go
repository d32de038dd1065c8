package mem

import (
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"
)

func TestSizeToPages(t *testing.T) {
	specs := []struct {
		size     Size
		expPages uint64
	}{
		{1023 * Kb, 256},
		{1024 * Kb, 256},
		{1 * Byte, 1},
		{0, 0},
	}

	for specIndex, spec := range specs {
		if got := spec.size.Pages(); got != spec.expPages {
			t.Errorf("[spec %d] expected Pages(%d bytes) to equal %d; got %d", specIndex, spec.size, spec.expPages, got)
		}
	}
}

func TestSizeString(t *testing.T) {
	specs := []struct {
		size Size
		exp  string
	}{
		{12, "12B"},
		{4 * Kb, "4K"},
		{1536 * Kb, "1.5M"},
		{2 * Gb, "2.0G"},
	}

	for specIndex, spec := range specs {
		if got := spec.size.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}

func TestWordsOverlay(t *testing.T) {
	if got := Words(0, 0); got != nil {
		t.Fatalf("expected a nil overlay for a zero word count; got %v", got)
	}

	// Overlays are only ever placed on memory obtained outside the Go heap.
	region, err := unix.Mmap(-1, 0, unix.Getpagesize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = unix.Munmap(region) }()

	addr := uintptr(unsafe.Pointer(&region[0]))
	buf := Words(addr, 64)

	specs := []struct {
		offset uintptr
		count  uint64
	}{
		{0, 1},
		{8, 4},
		{60, 49},
	}

	for specIndex, spec := range specs {
		Fill(buf, 0)

		overlay := Words(addr+spec.offset, spec.count)
		for i := range overlay {
			overlay[i] = uint32(0xa0 + i)
		}

		first := int(spec.offset) >> WordShift
		for i := range buf {
			var exp uint32
			if i >= first && i < first+int(spec.count) {
				exp = uint32(0xa0 + i - first)
			}
			if buf[i] != exp {
				t.Errorf("[spec %d] expected word %d to be 0x%x; got 0x%x", specIndex, i, exp, buf[i])
			}
		}

		if got := AddrOf(overlay, 0); got != addr+spec.offset {
			t.Errorf("[spec %d] expected AddrOf to return 0x%x; got 0x%x", specIndex, addr+spec.offset, got)
		}
	}

	if got := AddrOf(buf, 5); got != addr+20 {
		t.Errorf("expected AddrOf to return 0x%x; got 0x%x", addr+20, got)
	}
}

func TestFill(t *testing.T) {
	// filling an empty slice should be a no-op
	Fill(nil, 0xff)

	for words := 1; words <= 1025; words += 17 {
		buf := make([]uint32, words)
		for i := range buf {
			buf[i] = 0xfe
		}

		Fill(buf, 0x5555aaaa)

		for i, got := range buf {
			if got != 0x5555aaaa {
				t.Errorf("[block with %d words] expected word %d to be 0x5555aaaa; got 0x%x", words, i, got)
			}
		}
	}
}
