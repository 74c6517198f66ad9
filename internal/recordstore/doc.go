// Package recordstore is the record-store side of the shared header
// protocol: it turns registry handles into per-owner header copies that are
// refreshed only when the shared version moves.
//
// A SharedHeader is what one open record store holds. It remembers the last
// version it copied and polls the registry with it, so an unchanged header
// costs a version compare and nothing else. Bytes handed out by the registry
// are copied immediately; a SharedHeader never keeps a registry view.
//
// Opening retries on OutOfMemory after asking the Reclaimer to free memory,
// the same way the storage layer retries allocations after a collection.
package recordstore
