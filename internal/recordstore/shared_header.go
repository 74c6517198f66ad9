package recordstore

import (
	"log/slog"
	"sync"

	"github.com/roach88/hdrreg/internal/header"
)

// SharedHeader is one record store's view of a shared header: a private
// copy of the payload plus the version that copy came from.
//
// Thread-safety: methods are safe for concurrent use, though a record store
// normally drives its SharedHeader from a single goroutine.
type SharedHeader struct {
	hd  *header.Handle
	log *slog.Logger

	mu    sync.Mutex
	known header.Version
	data  []byte
}

func newSharedHeader(hd *header.Handle, log *slog.Logger) *SharedHeader {
	return &SharedHeader{hd: hd, log: log, known: neverSeen}
}

// LookupID returns the shared header's lookup id, usable with Reopen.
func (s *SharedHeader) LookupID() header.LookupID {
	return s.hd.LookupID()
}

// Info returns the shared header's live state, not the private copy's.
func (s *SharedHeader) Info() header.Info {
	return s.hd.Header().Info()
}

// Version returns the version of the private copy.
func (s *SharedHeader) Version() header.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.known
}

// Bytes returns the private copy. Callers must not modify it.
func (s *SharedHeader) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Refresh copies the shared payload if it moved past the private copy's
// version. changed reports whether a copy was made.
func (s *SharedHeader) Refresh() (changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked()
}

func (s *SharedHeader) refreshLocked() (bool, error) {
	view, v, ok := s.hd.Get(s.known)
	if !ok {
		// Get reports a released handle as unchanged; tell the two apart.
		if s.hd.Released() {
			return false, errClosed(s.hd)
		}
		return false, nil
	}
	// The view aliases the registry's buffer; copy before anyone writes.
	s.data = view.Clone()
	s.known = v
	return true, nil
}

// Update writes data at the start of the shared payload and refreshes the
// private copy. It returns the version produced by this write.
func (s *SharedHeader) Update(data []byte) (header.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.hd.Set(data)
	if err != nil {
		return 0, err
	}
	// Another owner may have written since; pick up whatever is newest.
	s.known = v - 1
	if _, err := s.refreshLocked(); err != nil {
		return v, err
	}
	s.log.Debug("shared header updated", "lookup_id", s.hd.LookupID(), "version", v)
	return v, nil
}

// Close releases this owner's reference. The header is deleted when the
// last owner closes. Closing twice returns an error.
func (s *SharedHeader) Close() error {
	deleted, err := s.hd.Release()
	if err != nil {
		return err
	}
	if deleted {
		s.log.Debug("shared header deleted", "lookup_id", s.hd.LookupID())
	}
	return nil
}

func errClosed(hd *header.Handle) error {
	return &header.RegistryError{
		Code:     header.ErrCodeReleased,
		Message:  "shared header closed",
		LookupID: hd.LookupID(),
	}
}
