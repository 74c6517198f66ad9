package header

import (
	"errors"
	"fmt"
)

// RegistryError represents a failure reported by a registry operation.
//
// Absence (find miss) and staleness (get with a current version) are normal
// outcomes signalled through boolean results and never surface as errors.
type RegistryError struct {
	// Code identifies the error category.
	Code RegistryErrorCode

	// Message is a human-readable description.
	Message string

	// SuiteID and StoreName identify the header involved, when known.
	SuiteID   int
	StoreName string

	// LookupID identifies an existing header (0 when the header was never created).
	LookupID LookupID
}

// RegistryErrorCode categorizes registry errors.
type RegistryErrorCode string

const (
	// ErrCodeOutOfMemory indicates an allocation could not be satisfied
	// within the registry's memory budget.
	ErrCodeOutOfMemory RegistryErrorCode = "OUT_OF_MEMORY"

	// ErrCodeInvalidRange indicates a negative offset or size, or a size
	// larger than the source buffer.
	ErrCodeInvalidRange RegistryErrorCode = "INVALID_RANGE"

	// ErrCodeReleased indicates a Handle was used after Release.
	ErrCodeReleased RegistryErrorCode = "RELEASED"

	// ErrCodeDeleted indicates the header is nil or no longer in the registry.
	ErrCodeDeleted RegistryErrorCode = "DELETED"

	// ErrCodeClosed indicates the registry was torn down.
	ErrCodeClosed RegistryErrorCode = "CLOSED"
)

// Error implements the error interface.
func (e *RegistryError) Error() string {
	if e.StoreName != "" {
		return fmt.Sprintf("%s: %s (suite=%d, store=%q)", e.Code, e.Message, e.SuiteID, e.StoreName)
	}
	if e.LookupID != 0 {
		return fmt.Sprintf("%s: %s (lookup=%d)", e.Code, e.Message, e.LookupID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code RegistryErrorCode) bool {
	var re *RegistryError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsOutOfMemory returns true if the error is an allocation failure.
// Uses errors.As to handle wrapped errors.
func IsOutOfMemory(err error) bool {
	return hasCode(err, ErrCodeOutOfMemory)
}

// IsInvalidRange returns true if the error reports a bad offset or size.
func IsInvalidRange(err error) bool {
	return hasCode(err, ErrCodeInvalidRange)
}

// IsReleased returns true if the error reports use of a released Handle.
func IsReleased(err error) bool {
	return hasCode(err, ErrCodeReleased)
}

// IsDeleted returns true if the error reports use of a deleted header.
func IsDeleted(err error) bool {
	return hasCode(err, ErrCodeDeleted)
}

// IsClosed returns true if the error reports use of a closed registry.
func IsClosed(err error) bool {
	return hasCode(err, ErrCodeClosed)
}

func newOutOfMemory(what string, suiteID int, storeName string, want, avail int64) *RegistryError {
	return &RegistryError{
		Code:      ErrCodeOutOfMemory,
		Message:   fmt.Sprintf("cannot allocate %s (%d bytes, %d available)", what, want, avail),
		SuiteID:   suiteID,
		StoreName: storeName,
	}
}

func newInvalidRange(id LookupID, offset, size, srcLen int) *RegistryError {
	return &RegistryError{
		Code:     ErrCodeInvalidRange,
		Message:  fmt.Sprintf("invalid range offset=%d size=%d for source of %d bytes", offset, size, srcLen),
		LookupID: id,
	}
}
