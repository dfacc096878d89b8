package documents

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAllocationExhausted indicates no unique number could be produced
	// after bounded retries and fallbacks.
	ErrAllocationExhausted = errors.New("number allocation exhausted")
	// ErrInvalidTransition indicates the requested status change is not
	// defined for the document's type and current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrForwardLocked indicates a live successor references the document,
	// so it cannot be edited.
	ErrForwardLocked = errors.New("document is forward-locked by a live successor")
	// ErrSourceLocked indicates the source document already has a live
	// successor, so a new one cannot be chained to it.
	ErrSourceLocked = errors.New("source document already has a live successor")
	// ErrHasLiveSuccessor indicates a void was attempted on a document with a
	// non-voided successor somewhere down the chain.
	ErrHasLiveSuccessor = errors.New("document has a live successor")
	// ErrSchemaMismatch indicates the store rejected a patch field even after
	// trying the known column-name variants.
	ErrSchemaMismatch = errors.New("store schema mismatch")
	// ErrPartialCascade marks a void whose cascaded updates partially applied.
	ErrPartialCascade = errors.New("partial cascade failure")
)

// PartialCascadeError reports a void operation that applied some cascaded
// updates and then failed. The already-applied steps are not rolled back; the
// caller reconciles manually using the recorded detail.
type PartialCascadeError struct {
	// Applied lists the cascade steps that committed before the failure.
	Applied []string
	// FailedDocumentID is the document whose update failed.
	FailedDocumentID uuid.UUID
	// FailedStep names the update that failed.
	FailedStep string
	// Err is the underlying store error.
	Err error
}

func (e *PartialCascadeError) Error() string {
	return fmt.Sprintf("partial cascade failure at %q on document %s (applied: %d steps): %v",
		e.FailedStep, e.FailedDocumentID, len(e.Applied), e.Err)
}

// Unwrap exposes the underlying store error.
func (e *PartialCascadeError) Unwrap() error { return e.Err }

// Is lets errors.Is match the ErrPartialCascade sentinel.
func (e *PartialCascadeError) Is(target error) bool { return target == ErrPartialCascade }
