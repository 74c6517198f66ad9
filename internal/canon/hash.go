package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainPayload = "hdrreg/payload/v1"
	DomainTrace   = "hdrreg/trace/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PayloadDigest returns the digest of a header payload.
// Journals record it instead of the raw bytes.
func PayloadDigest(data []byte) string {
	return hashWithDomain(DomainPayload, data)
}

// TraceDigest returns the digest of a trace value's canonical JSON.
func TraceDigest(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("trace digest: %w", err)
	}
	return hashWithDomain(DomainTrace, b), nil
}
