package mem

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// WordShift is equal to log2(WordSize).
	WordShift = 2

	// WordSize is the size of the unit that all test algorithms read and
	// write.
	WordSize = Size(1 << WordShift)

	// CacheLineSize is the granularity used when a range is sliced
	// between processors so that no two processors touch the same line.
	CacheLineSize = 64

	// SpinWindowWords is the default number of words processed between two
	// progress ticks.
	SpinWindowWords = 0x4000000
)
