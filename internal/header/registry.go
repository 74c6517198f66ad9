package header

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"sync"
)

// Config controls a Registry.
type Config struct {
	// MaxBytes caps the bytes charged by live headers (node overhead, name
	// and payload). Zero means unlimited.
	MaxBytes int64

	// InitialVersion is the version given to newly created headers.
	InitialVersion Version

	// Debug turns caller contract violations into panics.
	Debug bool

	// Logger receives lifecycle and contract-violation logs.
	// If nil, logs are discarded.
	Logger *slog.Logger
}

// Registry is the process-wide collection of shared headers.
//
// Thread-safety: all methods are safe for concurrent use. Each call holds
// the registry mutex for its whole duration.
type Registry struct {
	mu sync.Mutex

	byID   map[LookupID]*Header
	byName map[nameKey][]*Header

	nextID         LookupID
	initialVersion Version
	budget         budget
	debug          bool
	closed         bool

	logger *slog.Logger
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		byID:           make(map[LookupID]*Header),
		byName:         make(map[nameKey][]*Header),
		nextID:         1,
		initialVersion: cfg.InitialVersion,
		budget:         budget{limit: cfg.MaxBytes},
		debug:          cfg.Debug,
		logger:         logger,
	}
}

// Close tears the registry down, unlinking every remaining header and
// releasing its memory. Outstanding references become dangling; later
// lookups miss and Create fails with ErrCodeClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if n := len(r.byID); n > 0 {
		r.logger.Warn("closing registry with live headers", "count", n)
	}
	for _, h := range r.byID {
		r.freeLocked(h)
	}
	r.byID = make(map[LookupID]*Header)
	r.byName = make(map[nameKey][]*Header)
	r.closed = true
}

// FindByID returns the header with the given lookup ID.
// It never allocates and never touches reference counts.
func (r *Registry) FindByID(id LookupID) (*Header, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byID[id]
	return h, ok
}

// FindByName returns the header for (suiteID, storeName).
// It does not take ownership; callers that keep the header call IncRef.
func (r *Registry) FindByName(suiteID int, storeName string) (*Header, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByNameLocked(suiteID, storeName)
}

func (r *Registry) findByNameLocked(suiteID int, storeName string) (*Header, bool) {
	nodes := r.byName[nameKey{suiteID: suiteID, storeName: storeName}]
	if len(nodes) == 0 {
		return nil, false
	}
	return nodes[0], true
}

// Create allocates a header for (suiteID, storeName) with a zero-filled
// payload of dataSize bytes, refCount 1 and the initial version, and indexes
// it by ID and by name.
//
// Create does not look for an existing header with the same natural key;
// callers run FindByName first. On failure nothing is indexed.
func (r *Registry) Create(suiteID int, storeName string, dataSize int) (*Header, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(suiteID, storeName, dataSize)
}

func (r *Registry) createLocked(suiteID int, storeName string, dataSize int) (*Header, error) {
	if r.closed {
		return nil, &RegistryError{Code: ErrCodeClosed, Message: "registry is closed", SuiteID: suiteID, StoreName: storeName}
	}
	if dataSize < 0 {
		return nil, &RegistryError{
			Code:      ErrCodeInvalidRange,
			Message:   fmt.Sprintf("negative data size %d", dataSize),
			SuiteID:   suiteID,
			StoreName: storeName,
		}
	}
	if dataSize > MaxDataSize {
		return nil, newOutOfMemory("header data", suiteID, storeName, int64(dataSize), r.budget.available())
	}
	if _, dup := r.findByNameLocked(suiteID, storeName); dup {
		r.violation("create with an existing natural key", "suite_id", suiteID, "store_name", storeName)
	}

	// Allocation points: node, name copy, data buffer. Each failure rolls
	// back what was charged before it.
	var charged int64
	steps := []struct {
		what string
		n    int64
	}{
		{"header node", NodeOverhead},
		{"store name", int64(len(storeName))},
		{"header data", int64(dataSize)},
	}
	for _, step := range steps {
		if !r.budget.reserve(step.n) {
			avail := r.budget.available()
			r.budget.release(charged)
			r.logger.Debug("header allocation failed",
				"suite_id", suiteID,
				"store_name", storeName,
				"what", step.what,
				"want", step.n,
			)
			return nil, newOutOfMemory(step.what, suiteID, storeName, step.n, avail)
		}
		charged += step.n
	}

	h := &Header{
		reg:       r,
		lookupID:  r.nextID,
		suiteID:   suiteID,
		storeName: storeName,
		version:   r.initialVersion,
		data:      make([]byte, dataSize),
		refCount:  1,
		charged:   charged,
		linked:    true,
	}
	r.nextID++

	key := nameKey{suiteID: suiteID, storeName: storeName}
	r.byID[h.lookupID] = h
	r.byName[key] = append(r.byName[key], h)

	r.logger.Debug("header created",
		"lookup_id", h.lookupID,
		"suite_id", suiteID,
		"store_name", storeName,
		"size", dataSize,
	)
	return h, nil
}

// Delete unlinks the header and releases its payload and name storage.
// A nil or already deleted header is a no-op.
//
// Delete does not check the reference count. Call it only after DecRef
// returned 0; deleting a referenced header leaves other holders dangling.
func (r *Registry) Delete(h *Header) {
	if h == nil {
		return
	}
	if r.foreign(h) {
		h.reg.Delete(h)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteLocked(h)
}

func (r *Registry) deleteLocked(h *Header) {
	if !h.linked {
		return
	}
	if h.refCount > 0 {
		r.violation("delete of a referenced header", "lookup_id", h.lookupID, "ref_count", h.refCount)
	}

	delete(r.byID, h.lookupID)
	key := nameKey{suiteID: h.suiteID, storeName: h.storeName}
	nodes := r.byName[key]
	for i, n := range nodes {
		if n == h {
			nodes = append(nodes[:i], nodes[i+1:]...)
			break
		}
	}
	if len(nodes) == 0 {
		delete(r.byName, key)
	} else {
		r.byName[key] = nodes
	}

	r.freeLocked(h)
	r.logger.Debug("header deleted", "lookup_id", h.lookupID, "suite_id", h.suiteID, "store_name", h.storeName)
}

// freeLocked releases the header's memory without touching the indexes.
func (r *Registry) freeLocked(h *Header) {
	r.budget.release(h.charged)
	h.charged = 0
	h.data = nil
	h.linked = false
}

// SetData copies src[:size] into the header payload starting at offset,
// growing the payload with zero bytes when offset+size exceeds it, and
// returns the new version.
//
// The version is bumped by exactly one on every successful call, whether or
// not the bytes changed. Errors leave both payload and version untouched.
func (r *Registry) SetData(h *Header, src []byte, offset, size int) (Version, error) {
	if h == nil {
		return 0, &RegistryError{Code: ErrCodeDeleted, Message: "nil header"}
	}
	if r.foreign(h) {
		return h.reg.SetData(h, src, offset, size)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setDataLocked(h, src, offset, size)
}

func (r *Registry) setDataLocked(h *Header, src []byte, offset, size int) (Version, error) {
	if !h.linked {
		return h.version, &RegistryError{Code: ErrCodeDeleted, Message: "header is not in the registry", LookupID: h.lookupID}
	}
	if offset < 0 || size < 0 || size > len(src) || offset > math.MaxInt-size {
		return h.version, newInvalidRange(h.lookupID, offset, size, len(src))
	}

	if need := offset + size; need > len(h.data) {
		grow := int64(need - len(h.data))
		if need > MaxDataSize || !r.budget.reserve(grow) {
			return h.version, newOutOfMemory("header data", h.suiteID, h.storeName, grow, r.budget.available())
		}
		h.charged += grow
		data := make([]byte, need)
		copy(data, h.data)
		h.data = data
	}

	copy(h.data[offset:], src[:size])
	h.version++
	return h.version, nil
}

// GetData returns a view of the live payload when the header's version is
// newer than callerVersion. Otherwise ok is false and the caller's copy is
// current. The header's version is returned in both cases.
func (r *Registry) GetData(h *Header, callerVersion Version) (view View, version Version, ok bool) {
	if h == nil {
		return View{}, 0, false
	}
	if r.foreign(h) {
		return h.reg.GetData(h, callerVersion)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return h.getDataLocked(callerVersion)
}

func (h *Header) getDataLocked(callerVersion Version) (View, Version, bool) {
	if h.version <= callerVersion {
		return View{}, h.version, false
	}
	return View{b: h.data}, h.version, true
}

// IncRef adds one logical owner.
func (r *Registry) IncRef(h *Header) {
	if h == nil {
		return
	}
	if r.foreign(h) {
		h.reg.IncRef(h)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h.refCount++
}

// DecRef removes one logical owner and returns the remaining count.
// A return of 0 is the caller's cue to Delete the header.
// Decrementing a count that is already 0 is a caller bug; the count stays 0.
func (r *Registry) DecRef(h *Header) int {
	if h == nil {
		return 0
	}
	if r.foreign(h) {
		return h.reg.DecRef(h)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decRefLocked(h)
}

func (r *Registry) decRefLocked(h *Header) int {
	if h.refCount <= 0 {
		r.violation("reference count decremented below zero", "lookup_id", h.lookupID)
		return 0
	}
	h.refCount--
	return h.refCount
}

// Stats summarizes registry usage.
type Stats struct {
	Headers      int      `json:"headers"`
	BytesInUse   int64    `json:"bytes_in_use"`
	MaxBytes     int64    `json:"max_bytes"`
	NextLookupID LookupID `json:"next_lookup_id"`
}

// Stats returns current usage figures.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Headers:      len(r.byID),
		BytesInUse:   r.budget.used,
		MaxBytes:     r.budget.limit,
		NextLookupID: r.nextID,
	}
}

// Snapshot returns the state of every live header ordered by lookup ID.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]Info, 0, len(r.byID))
	for _, h := range r.byID {
		infos = append(infos, h.infoLocked())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LookupID < infos[j].LookupID
	})
	return infos
}

// foreign reports whether h belongs to another registry. Such calls are
// a contract violation; they are forwarded so the owner's mutex guards h.
func (r *Registry) foreign(h *Header) bool {
	if h.reg == r {
		return false
	}
	r.violation("header from another registry", "lookup_id", h.lookupID, "store_name", h.storeName)
	return true
}

// violation reports a broken caller contract.
func (r *Registry) violation(msg string, args ...any) {
	if r.debug {
		panic(fmt.Sprintf("header: %s %v", msg, args))
	}
	r.logger.Warn(msg, args...)
}
