package header

import "sync/atomic"

// Handle is one logical owner's claim on a shared header.
//
// A Handle is obtained from Acquire and must be released exactly once.
// Release decrements the reference count and deletes the header when the
// last owner leaves. A second Release returns ErrCodeReleased instead of
// corrupting the count.
type Handle struct {
	reg      *Registry
	h        *Header
	released atomic.Bool
}

// Acquire resolves the header for (suiteID, storeName), taking a reference
// on an existing one or creating it with dataSize zero bytes on a miss.
// The find, create and increment run in one critical section.
//
// created reports whether this call created the header.
func (r *Registry) Acquire(suiteID int, storeName string, dataSize int) (hd *Handle, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.findByNameLocked(suiteID, storeName); ok {
		h.refCount++
		return &Handle{reg: r, h: h}, false, nil
	}

	h, err := r.createLocked(suiteID, storeName, dataSize)
	if err != nil {
		return nil, false, err
	}
	return &Handle{reg: r, h: h}, true, nil
}

// AcquireWith is Acquire for a header whose payload starts as a copy of
// initial. When this call creates the header, the copy and its version bump
// happen in the same critical section as the create, so no other caller can
// observe the zero-filled payload. An existing header is left untouched.
func (r *Registry) AcquireWith(suiteID int, storeName string, initial []byte) (hd *Handle, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.findByNameLocked(suiteID, storeName); ok {
		h.refCount++
		return &Handle{reg: r, h: h}, false, nil
	}

	h, err := r.createLocked(suiteID, storeName, len(initial))
	if err != nil {
		return nil, false, err
	}
	if len(initial) > 0 {
		// Same size as the buffer: cannot grow, cannot fail.
		if _, err := r.setDataLocked(h, initial, 0, len(initial)); err != nil {
			h.refCount = 0
			r.deleteLocked(h)
			return nil, false, err
		}
	}
	return &Handle{reg: r, h: h}, true, nil
}

// AcquireByID takes a reference on the header with the given lookup ID.
// ok is false when no such header is live.
func (r *Registry) AcquireByID(id LookupID) (hd *Handle, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	h.refCount++
	return &Handle{reg: r, h: h}, true
}

// Header returns the underlying header.
func (hd *Handle) Header() *Header {
	return hd.h
}

// LookupID returns the header's lookup ID, usable with AcquireByID.
func (hd *Handle) LookupID() LookupID {
	return hd.h.lookupID
}

// Set writes data at offset 0 and returns the new version. A shorter write
// leaves the tail of a longer payload in place.
func (hd *Handle) Set(data []byte) (Version, error) {
	if hd.released.Load() {
		return 0, hd.releasedErr()
	}
	return hd.reg.SetData(hd.h, data, 0, len(data))
}

// SetRange writes src[:size] at offset. See Registry.SetData.
func (hd *Handle) SetRange(src []byte, offset, size int) (Version, error) {
	if hd.released.Load() {
		return 0, hd.releasedErr()
	}
	return hd.reg.SetData(hd.h, src, offset, size)
}

// Get returns the payload if it is newer than callerVersion.
// See Registry.GetData.
func (hd *Handle) Get(callerVersion Version) (View, Version, bool) {
	if hd.released.Load() {
		return View{}, 0, false
	}
	return hd.reg.GetData(hd.h, callerVersion)
}

// Release gives up this owner's reference. deleted reports whether this was
// the last reference and the header has been removed.
func (hd *Handle) Release() (deleted bool, err error) {
	if !hd.released.CompareAndSwap(false, true) {
		return false, hd.releasedErr()
	}

	r := hd.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.decRefLocked(hd.h) == 0 {
		r.deleteLocked(hd.h)
		return true, nil
	}
	return false, nil
}

// Released reports whether Release has been called.
func (hd *Handle) Released() bool {
	return hd.released.Load()
}

func (hd *Handle) releasedErr() error {
	return &RegistryError{
		Code:      ErrCodeReleased,
		Message:   "handle already released",
		SuiteID:   hd.h.suiteID,
		StoreName: hd.h.storeName,
		LookupID:  hd.h.lookupID,
	}
}
