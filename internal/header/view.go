package header

// View is a borrowed view of a header's live payload, returned by GetData.
//
// A View aliases the registry's buffer; nothing is copied. It stays valid
// only until the next SetData or Delete on the same header. Callers that need
// the bytes across a mutation window copy them out with Clone or CopyTo
// straight away.
type View struct {
	b []byte
}

// Len returns the payload length in bytes.
func (v View) Len() int {
	return len(v.b)
}

// Bytes returns the aliased payload. Do not modify or retain it.
func (v View) Bytes() []byte {
	return v.b
}

// Clone returns a private copy of the payload.
func (v View) Clone() []byte {
	if v.b == nil {
		return nil
	}
	out := make([]byte, len(v.b))
	copy(out, v.b)
	return out
}

// CopyTo copies the payload into dst and returns the number of bytes copied.
func (v View) CopyTo(dst []byte) int {
	return copy(dst, v.b)
}
