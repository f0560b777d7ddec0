package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound             = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists        = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput         = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrUnavailable          = NewDomainError("UNAVAILABLE", "No model available to serve the request")
	ErrRetrainConflict      = NewDomainError("RETRAIN_CONFLICT", "A retraining run is already in progress for this model")
	ErrInsufficientFeedback = NewDomainError("INSUFFICIENT_FEEDBACK", "Not enough feedback samples to retrain")
	ErrStorageFailure       = NewDomainError("STORAGE_FAILURE", "Artifact storage operation failed")
	ErrMetadataStoreFailure = NewDomainError("METADATA_STORE_FAILURE", "Metadata store operation failed")
	ErrInvalidState         = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)
