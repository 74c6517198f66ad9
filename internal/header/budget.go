package header

// NodeOverhead is the fixed number of bytes charged against the memory
// budget for every header node, independent of its name and payload.
const NodeOverhead = 64

// MaxDataSize is the largest payload a header may hold. Larger requests
// fail with ErrCodeOutOfMemory even when the budget is unlimited.
const MaxDataSize = 1 << 31

// budget tracks bytes charged by live headers against an optional limit.
// A zero limit means unlimited. Callers hold the registry mutex.
type budget struct {
	limit int64
	used  int64
}

// available returns the number of bytes that can still be reserved,
// or -1 when the budget is unlimited.
func (b *budget) available() int64 {
	if b.limit <= 0 {
		return -1
	}
	return b.limit - b.used
}

// reserve charges n bytes. It returns false and charges nothing when the
// limit would be exceeded or n is negative.
func (b *budget) reserve(n int64) bool {
	if n < 0 {
		return false
	}
	if b.limit > 0 && n > b.limit-b.used {
		return false
	}
	b.used += n
	return true
}

// release returns n previously reserved bytes.
func (b *budget) release(n int64) {
	b.used -= n
	if b.used < 0 {
		b.used = 0
	}
}
