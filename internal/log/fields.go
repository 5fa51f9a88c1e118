package log

// Canonical field name constants for structured logging.
const (
	FieldService   = "service"
	FieldComponent = "component"

	// Batch fields
	FieldRunID     = "run_id"
	FieldIndex     = "index"
	FieldCompleted = "completed"
	FieldTotal     = "total"
	FieldState     = "state"

	// Item fields
	FieldURL     = "url"
	FieldItemID  = "item_id"
	FieldTitle   = "title"
	FieldKind    = "kind"
	FieldVariant = "variant"
	FieldAssets  = "assets"

	// Transfer fields
	FieldPath        = "path"
	FieldAttempt     = "attempt"
	FieldMaxAttempts = "max_attempts"
	FieldStatus      = "status"
	FieldBytes       = "bytes"
)
