package repositories

import (
	"errors"
	"fmt"

	domain "github.com/insigne-house/api/internal/domain"
)

var (
	// ErrGenerationInProgress indicates a live generation claim already covers the record.
	ErrGenerationInProgress = errors.New("insigne repository: generation already in progress")
	// ErrContentAlreadyGenerated indicates the record already advanced past generation.
	ErrContentAlreadyGenerated = errors.New("insigne repository: content already generated")
)

// StatusTransitionError reports a lifecycle move the current status does not allow.
type StatusTransitionError struct {
	Current domain.InsigneStatus
	Target  domain.InsigneStatus
}

// Error implements the error interface.
func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("insigne repository: cannot move %s to %s", e.Current, e.Target)
}

// NewNotFound builds a RepositoryError classified as not-found, for lookups
// that miss without a driver-level error (empty query results).
func NewNotFound(message string) error {
	return &classifiedError{message: message, notFound: true}
}

type classifiedError struct {
	message     string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *classifiedError) Error() string       { return e.message }
func (e *classifiedError) IsNotFound() bool    { return e.notFound }
func (e *classifiedError) IsConflict() bool    { return e.conflict }
func (e *classifiedError) IsUnavailable() bool { return e.unavailable }
