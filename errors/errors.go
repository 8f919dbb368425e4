package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/livepeer/videogw/log"
)

type APIError struct {
	Msg    string `json:"message"`
	Status int    `json:"status"`
	Err    error  `json:"-"`
}

func (e APIError) Error() string {
	return e.Msg
}

func writeHttpError(w http.ResponseWriter, msg string, status int, err error, errType string) APIError {
	w.Header().Set("Content-Type", "application/json")
	if errType != "" {
		w.Header().Set("X-Error-Type", errType)
	}
	w.WriteHeader(status)

	var errorDetail string
	if err != nil {
		errorDetail = err.Error()
	}

	body := map[string]interface{}{"error": errType, "message": msg, "statusCode": status}
	if errorDetail != "" {
		body["error_detail"] = errorDetail
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.LogNoRequestID("error writing HTTP error", "http_error_msg", msg, "error", err)
	}
	return APIError{msg, status, err}
}

// WriteHTTPStatus writes a JSON error envelope at an arbitrary status, for callers
// (e.g. the backend error-code classifier) that already know the exact HTTP status
// and error-type label to use.
func WriteHTTPStatus(w http.ResponseWriter, msg string, err error, status int, errType string) APIError {
	return writeHttpError(w, msg, status, err, errType)
}

// HTTP Errors
func WriteHTTPUnauthorized(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusUnauthorized, err, "UNAUTHORIZED")
}

func WriteHTTPBadRequest(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusBadRequest, err, "BAD_REQUEST")
}

func WriteHTTPUnsupportedMediaType(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusUnsupportedMediaType, err, "UNSUPPORTED_MEDIA_TYPE")
}

func WriteHTTPNotFound(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusNotFound, err, "NOT_FOUND")
}

func WriteHTTPInternalServerError(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusInternalServerError, err, "INTERNAL")
}

// WriteAPIError dispatches on the taxonomy below, producing the JSON envelope and
// X-Error-Type header described in SPEC_FULL.md §7.
func WriteAPIError(w http.ResponseWriter, err error) APIError {
	var v *ValidationError
	var o *OriginError
	var p *ProcessingError
	var n *NotFoundError
	var c *ConfigurationError
	switch {
	case errors.As(err, &v):
		return writeHttpError(w, v.Error(), http.StatusBadRequest, v.Cause, string(v.Kind))
	case errors.As(err, &o):
		return writeHttpError(w, o.Error(), o.httpStatus(), o.Cause, string(o.Kind))
	case errors.As(err, &p):
		return writeHttpError(w, p.Error(), http.StatusInternalServerError, p.Cause, "PROCESSING_ERROR")
	case errors.As(err, &n):
		return writeHttpError(w, n.Error(), http.StatusNotFound, nil, "NOT_FOUND")
	case errors.As(err, &c):
		return writeHttpError(w, c.Error(), http.StatusInternalServerError, nil, "CONFIGURATION_ERROR")
	default:
		return writeHttpError(w, "internal server error", http.StatusInternalServerError, err, "INTERNAL")
	}
}

// Special wrapper for errors that should be treated as unretriable by callers doing
// backoff.
type UnretriableError struct{ error }

func Unretriable(err error) error {
	return UnretriableError{backoff.Permanent(err)}
}

func (e UnretriableError) Unwrap() error {
	return e.error
}

// IsUnretriable checks if the error is an UnretriableError.
func IsUnretriable(err error) bool {
	return errors.As(err, &UnretriableError{})
}

type ObjectNotFoundError struct {
	msg   string
	cause error
}

func (e ObjectNotFoundError) Error() string {
	return e.msg
}

func (e ObjectNotFoundError) Unwrap() error {
	return e.cause
}

func NewObjectNotFoundError(msg string, cause error) error {
	if cause != nil {
		msg = fmt.Sprintf("ObjectNotFoundError: %s: %s", msg, cause)
	} else {
		msg = fmt.Sprintf("ObjectNotFoundError: %s", msg)
	}
	return UnretriableError{ObjectNotFoundError{msg: msg, cause: cause}}
}

// IsObjectNotFound checks if the error is an ObjectNotFoundError.
func IsObjectNotFound(err error) bool {
	return errors.As(err, &ObjectNotFoundError{})
}

var (
	UnauthorisedError     = errors.New("UnauthorisedError")
	EmptyGatingParamError = errors.New("EmptyGatingParamError")
)

// ValidationKind enumerates the client (400) validation failures of §7.
type ValidationKind string

const (
	InvalidMode              ValidationKind = "INVALID_MODE"
	InvalidDimension         ValidationKind = "INVALID_DIMENSION"
	InvalidTimeValue         ValidationKind = "INVALID_TIME_VALUE"
	MissingRequiredParameter ValidationKind = "MISSING_REQUIRED_PARAMETER"
	InvalidOptionCombination ValidationKind = "INVALID_OPTION_COMBINATION"
)

type ValidationError struct {
	Kind    ValidationKind
	Param   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Param != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Param)
	}
	return string(e.Kind)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

func NewValidationError(kind ValidationKind, param, message string) *ValidationError {
	return &ValidationError{Kind: kind, Param: param, Message: message}
}

// OriginKind enumerates the origin-resolution failures of §4.C / §7.
type OriginKind string

const (
	OriginNotFound          OriginKind = "ORIGIN_NOT_FOUND"
	SourceResolutionFailed  OriginKind = "SOURCE_RESOLUTION_FAILED"
	SourceTypeNotSupported  OriginKind = "SOURCE_TYPE_NOT_SUPPORTED"
	PathResolutionFailed    OriginKind = "PATH_RESOLUTION_FAILED"
	AuthConfigurationError  OriginKind = "AUTH_CONFIGURATION_ERROR"
	OriginValidationFailed  OriginKind = "ORIGIN_VALIDATION_FAILED"
)

type OriginError struct {
	Kind    OriginKind
	Origin  string // origin name, carried by value per §9 design notes
	Message string
	Cause   error
}

func (e *OriginError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s (origin=%s)", e.Kind, e.Origin)
}

func (e *OriginError) Unwrap() error { return e.Cause }

func (e *OriginError) httpStatus() int {
	if e.Kind == OriginNotFound {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func NewOriginError(kind OriginKind, origin, message string, cause error) *OriginError {
	return &OriginError{Kind: kind, Origin: origin, Message: message, Cause: cause}
}

// ProcessingKind enumerates backend-transformation failures of §7.
type ProcessingKind string

const (
	FetchFailed           ProcessingKind = "FETCH_FAILED"
	TransformationFailed  ProcessingKind = "TRANSFORMATION_FAILED"
)

type ProcessingError struct {
	Kind       ProcessingKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *ProcessingError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s (status=%d)", e.Kind, e.StatusCode)
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

func NewFetchFailed(statusCode int, cause error) *ProcessingError {
	return &ProcessingError{Kind: FetchFailed, StatusCode: statusCode, Cause: cause}
}

func NewTransformationFailed(message string, cause error) *ProcessingError {
	return &ProcessingError{Kind: TransformationFailed, Message: message, Cause: cause}
}

// NotFoundKind enumerates 404 failures of §7.
type NotFoundKind string

const (
	PatternNotFound  NotFoundKind = "PATTERN_NOT_FOUND"
	ResourceNotFound NotFoundKind = "RESOURCE_NOT_FOUND"
)

type NotFoundError struct {
	Kind NotFoundKind
	Path string
}

func (e *NotFoundError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	return string(e.Kind)
}

func NewPatternNotFound(path string) *NotFoundError {
	return &NotFoundError{Kind: PatternNotFound, Path: path}
}

// ConfigurationError signals a missing/invalid configuration property (§7).
type ConfigurationError struct {
	Property string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing configuration property: %s", e.Property)
}

func NewMissingProperty(path string) *ConfigurationError {
	return &ConfigurationError{Property: path}
}

// CacheKind enumerates internal, never-surfaced cache failures (§7). These are
// swallowed by the orchestrator but are still typed so call sites can log them and
// callers under test can assert on them.
type CacheKind string

const (
	ChunkSizeMismatch CacheKind = "CHUNK_SIZE_MISMATCH"
	ManifestParseError CacheKind = "MANIFEST_PARSE_ERROR"
	VersioningFailure  CacheKind = "VERSIONING_FAILURE"
)

type CacheError struct {
	Kind    CacheKind
	Message string
	Cause   error
}

func (e *CacheError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *CacheError) Unwrap() error { return e.Cause }

func NewCacheError(kind CacheKind, message string, cause error) *CacheError {
	return &CacheError{Kind: kind, Message: message, Cause: cause}
}

// IsCacheError reports whether err is (or wraps) a CacheError — used by the
// orchestrator to decide whether a failure must be swallowed per §7.
func IsCacheError(err error) bool {
	var c *CacheError
	return errors.As(err, &c)
}
