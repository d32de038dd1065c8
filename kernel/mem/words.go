package mem

import "unsafe"

// Words overlays a []uint32 slice on top of count words starting at addr.
// The caller must guarantee that the region is mapped for the lifetime of
// the returned slice.
func Words(addr uintptr, count uint64) []uint32 {
	if count == 0 {
		return nil
	}

	return unsafe.Slice((*uint32)(unsafe.Pointer(addr)), count)
}

// AddrOf returns the address of the i-th word in buf.
func AddrOf(buf []uint32, i int) uintptr {
	return uintptr(unsafe.Pointer(&buf[0])) + uintptr(i)<<WordShift
}

// Fill sets every word in buf to value. Instead of using a for loop, this
// function sets the first word and then makes log2(len(buf)) copy calls,
// each doubling the initialized prefix.
func Fill(buf []uint32, value uint32) {
	if len(buf) == 0 {
		return
	}

	buf[0] = value
	for index := 1; index < len(buf); index *= 2 {
		copy(buf[index:], buf[:index])
	}
}
