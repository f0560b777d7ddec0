package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when the service key is missing or wrong
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the caller lacks permission
	ErrCodeForbidden = "ERR_FORBIDDEN"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
)

// Serving and lifecycle error codes
const (
	// ErrCodeUnavailable is used when no model can serve a prediction
	ErrCodeUnavailable = "ERR_MODEL_UNAVAILABLE"
	// ErrCodeRetrainConflict is used when a retraining run is already active
	ErrCodeRetrainConflict = "ERR_RETRAIN_CONFLICT"
	// ErrCodeInsufficientFeedback is used when the feedback threshold is not met
	ErrCodeInsufficientFeedback = "ERR_INSUFFICIENT_FEEDBACK"
	// ErrCodeStorageFailure is used when the artifact store fails
	ErrCodeStorageFailure = "ERR_STORAGE_FAILURE"
	// ErrCodeMetadataStoreFailure is used when the metadata database fails
	ErrCodeMetadataStoreFailure = "ERR_METADATA_STORE_FAILURE"
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	// Resource errors
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,

	// Serving and lifecycle errors
	ErrCodeUnavailable:          http.StatusServiceUnavailable,
	ErrCodeRetrainConflict:      http.StatusConflict,
	ErrCodeInsufficientFeedback: http.StatusUnprocessableEntity,
	ErrCodeStorageFailure:       http.StatusBadGateway,
	ErrCodeMetadataStoreFailure: http.StatusBadGateway,
	ErrCodeInvalidState:         http.StatusUnprocessableEntity,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	// Rate limiting -> 429 Too Many Requests
	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":              ErrCodeNotFound,
	"ALREADY_EXISTS":         ErrCodeAlreadyExists,
	"INVALID_INPUT":          ErrCodeInvalidInput,
	"INVALID_STATE":          ErrCodeInvalidState,
	"UNAVAILABLE":            ErrCodeUnavailable,
	"RETRAIN_CONFLICT":       ErrCodeRetrainConflict,
	"INSUFFICIENT_FEEDBACK":  ErrCodeInsufficientFeedback,
	"STORAGE_FAILURE":        ErrCodeStorageFailure,
	"METADATA_STORE_FAILURE": ErrCodeMetadataStoreFailure,
	"UNAUTHORIZED":           ErrCodeUnauthorized,
	"FORBIDDEN":              ErrCodeForbidden,
	"VALIDATION_ERROR":       ErrCodeValidation,
	"BAD_REQUEST":            ErrCodeBadRequest,
	"INTERNAL_ERROR":         ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format
// If the code is already in the API format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
