// Package header implements the shared record-store header registry.
//
// A Registry holds versioned, reference-counted binary header blobs keyed by
// (suite ID, store name). Multiple isolates resolve the same header once,
// keep its lookup ID as a fast handle, and poll for changes by remembering
// the last version they observed.
//
// # Record lifecycle
//
//	Create (refCount=1) -> LIVE -> DecRef reaches 0 -> PENDING_DELETE -> Delete
//
// Creation is the only way into LIVE. A header is either indexed and live or
// gone; there is no detached state.
//
// # Caller contract
//
// The raw operations mirror the native RMS protocol:
//
//   - FindByName before Create. Create never de-duplicates natural keys.
//   - IncRef and DecRef are paired 1:1 per logical owner.
//   - Delete only after DecRef returned 0, inside the same caller-side
//     critical section.
//
// Violations are caller bugs. With Config.Debug set they panic; otherwise they
// are logged at warn level and the registry carries on.
//
// Acquire and Handle wrap the protocol into a single capability: Acquire
// performs find-then-create-or-inc atomically, and Handle.Release performs
// dec-then-delete atomically and rejects a second release.
//
// # Versions
//
// Every successful SetData bumps the version by exactly one, even when the
// bytes written are identical to what was there. GetData returns the live
// buffer only when the header's version is newer than the caller's.
//
// # Concurrency
//
// Every operation runs under one registry-wide mutex for its own duration.
// No operation blocks on I/O, so there is no context.Context in this API.
package header
