package handlers

// Stable error codes carried in ErrorResponse.Code. Clients branch on these,
// not on messages.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeInternal         = "internal_error"

	// Import outcomes.
	ErrCodeValidation     = "validation_failed"
	ErrCodeUnknownScraper = "unknown_scraper"
	ErrCodeImportAborted  = "import_aborted"
	ErrCodeFinalize       = "session_finalize_failed"
)
