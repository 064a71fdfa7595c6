// Package services implements the snapshot import engine and the read side
// of the menu tracker. This file centralizes the error values and types
// returned by the services so callers can branch on them with errors.Is and
// errors.As.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-menu-tracker/internal/domain"
	"github.com/tbourn/go-menu-tracker/internal/platform"
	"github.com/tbourn/go-menu-tracker/internal/snapshot"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = snapshot.ErrInvalid

	// ErrCategoryResolution matches every *CategoryResolutionError.
	ErrCategoryResolution = errors.New("category resolution failed")

	// ErrOfferReconciliation matches every *OfferReconciliationError.
	ErrOfferReconciliation = errors.New("offer reconciliation failed")

	// ErrTransactionAborted matches every *TransactionAbortError.
	ErrTransactionAborted = errors.New("import transaction aborted")

	// ErrSessionNotFound indicates that the requested scraping session does
	// not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRestaurantNotFound indicates that the requested restaurant does not
	// exist.
	ErrRestaurantNotFound = errors.New("restaurant not found")

	// ErrProductNotFound indicates that the requested product does not exist.
	ErrProductNotFound = errors.New("product not found")
)

// ValidationError is returned before any write when a snapshot lacks a
// required section or field.
type ValidationError = snapshot.ValidationError

// UnknownScraperError is returned when a new domain matches no platform and
// the registry has no default.
type UnknownScraperError = platform.UnknownScraperError

// CategoryResolutionError means a product could not be given a category,
// not even the fallback one. It aborts the import.
type CategoryResolutionError struct {
	RestaurantID string
	Category     string
}

func (e *CategoryResolutionError) Error() string {
	return fmt.Sprintf("restaurant %s: no category %q and no %q fallback", e.RestaurantID, e.Category, domain.UncategorizedName)
}

func (e *CategoryResolutionError) Is(target error) bool { return target == ErrCategoryResolution }

// OfferReconciliationError wraps a failure while transitioning an offer.
type OfferReconciliationError struct {
	Offer string
	Op    string // deactivate, continue, reactivate, create
	Err   error
}

func (e *OfferReconciliationError) Error() string {
	return fmt.Sprintf("offer %q: %s: %v", e.Offer, e.Op, e.Err)
}

func (e *OfferReconciliationError) Unwrap() error { return e.Err }

func (e *OfferReconciliationError) Is(target error) bool { return target == ErrOfferReconciliation }

// TransactionAbortError reports an import whose transaction was rolled back.
// Phase is the last phase reached; Err is the cause and may itself be a
// *CategoryResolutionError or *OfferReconciliationError.
type TransactionAbortError struct {
	SessionID string
	Phase     Phase
	Err       error
}

func (e *TransactionAbortError) Error() string {
	return fmt.Sprintf("import %s aborted in phase %s: %v", e.SessionID, e.Phase, e.Err)
}

func (e *TransactionAbortError) Unwrap() error { return e.Err }

func (e *TransactionAbortError) Is(target error) bool { return target == ErrTransactionAborted }

// ProductExtractionWarning describes one product record that was skipped.
// It is not an error: the rest of the snapshot is still imported and the
// warning is stored in the session's error list.
type ProductExtractionWarning struct {
	Index      int    `json:"index"`
	ExternalID string `json:"external_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Reason     string `json:"reason"`
}

func (w ProductExtractionWarning) String() string {
	return fmt.Sprintf("product #%d (%s): %s", w.Index, w.Name, w.Reason)
}

// Entry converts w into a session error entry.
func (w ProductExtractionWarning) Entry(at string) domain.ErrorEntry {
	ctx := map[string]any{"index": w.Index}
	if w.ExternalID != "" {
		ctx["external_id"] = w.ExternalID
	}
	if w.Name != "" {
		ctx["name"] = w.Name
	}
	return domain.ErrorEntry{
		Type:      "product_extraction",
		Message:   w.Reason,
		Timestamp: at,
		Context:   ctx,
	}
}
