package header

// LookupID is the process-unique identity of a header, stable for its
// lifetime. Zero is never issued.
type LookupID int64

// Version counts successful payload mutations on a header.
type Version int64

// nameKey is the natural key of a header.
type nameKey struct {
	suiteID   int
	storeName string
}

// Header is one shared record-store header.
//
// Identity fields (LookupID, SuiteID, StoreName) are immutable and read
// without locking. Version, RefCount and Size are read under the owning
// registry's mutex.
type Header struct {
	reg *Registry

	lookupID  LookupID
	suiteID   int
	storeName string

	version  Version
	data     []byte
	refCount int

	// charged is the number of budget bytes held by this node.
	charged int64
	// linked is true while the header is reachable through the indexes.
	linked bool
}

// LookupID returns the header's lookup ID.
func (h *Header) LookupID() LookupID {
	return h.lookupID
}

// SuiteID returns the owning suite ID.
func (h *Header) SuiteID() int {
	return h.suiteID
}

// StoreName returns the record store name.
func (h *Header) StoreName() string {
	return h.storeName
}

// Version returns the current version.
func (h *Header) Version() Version {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	return h.version
}

// RefCount returns the number of outstanding logical owners.
func (h *Header) RefCount() int {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	return h.refCount
}

// Size returns the payload size in bytes.
func (h *Header) Size() int {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	return len(h.data)
}

// Info is a point-in-time description of a header.
type Info struct {
	LookupID  LookupID `json:"lookup_id"`
	SuiteID   int      `json:"suite_id"`
	StoreName string   `json:"store_name"`
	Version   Version  `json:"version"`
	RefCount  int      `json:"ref_count"`
	Size      int      `json:"size"`
}

// Info returns a snapshot of the header's state.
func (h *Header) Info() Info {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	return h.infoLocked()
}

func (h *Header) infoLocked() Info {
	return Info{
		LookupID:  h.lookupID,
		SuiteID:   h.suiteID,
		StoreName: h.storeName,
		Version:   h.version,
		RefCount:  h.refCount,
		Size:      len(h.data),
	}
}
