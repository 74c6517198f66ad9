// Package canon produces canonical JSON and content digests for traces.
//
// Canonical JSON follows RFC 8785 for the value kinds traces use:
// object keys sorted by UTF-16 code units, NFC-normalized strings, no HTML
// escaping, integers only, no null. Golden trace files and journal digests
// are byte-stable across runs because of it.
package canon
