package optly

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// APIError represents an error returned by the Optimizely REST API.
type APIError struct {
	StatusCode int       `json:"-"       yaml:"-"`
	Code       ErrorCode `json:"code"    yaml:"code"`
	Message    string    `json:"message" yaml:"message"`
	UUID       string    `json:"uuid"    yaml:"uuid"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	message := e.Message
	if message == "" {
		message = http.StatusText(e.StatusCode)
	}

	if e.Code != "" {
		return fmt.Sprintf("%s: %s (status: %d)", e.Code, message, e.StatusCode)
	}

	return fmt.Sprintf("%s (status: %d)", message, e.StatusCode)
}

// ErrorCode is the API's error code. The API reports it either as a string
// ("NOT_FOUND") or as a number (404).
type ErrorCode string

// UnmarshalJSON accepts string and numeric codes.
func (c *ErrorCode) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" {
		*c = ""

		return nil
	}

	if strings.HasPrefix(text, `"`) {
		var s string

		err := json.Unmarshal(data, &s)
		if err != nil {
			return fmt.Errorf("decoding error code: %w", err)
		}

		*c = ErrorCode(s)

		return nil
	}

	_, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidErrorCode, text)
	}

	*c = ErrorCode(text)

	return nil
}

// ParseAPIError builds an APIError from a response status and body. Bodies that
// are not JSON still produce an error carrying the status and the raw text.
func ParseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	err := json.Unmarshal(body, apiErr)
	if err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	apiErr.StatusCode = statusCode

	return apiErr
}

// Static errors for err113 compliance.
var (
	ErrConfigRequired           = errors.New("config is required")
	ErrAPIEndpointRequired      = errors.New("API endpoint is required")
	ErrProjectIDRequired        = errors.New("project ID is required")
	ErrAccountIDRequired        = errors.New("account ID is required")
	ErrUnknownAssetType         = errors.New("unknown asset type")
	ErrNoAssetTypes             = errors.New("at least one asset type is required")
	ErrPaginationLimitExceeded  = errors.New("search pagination limit exceeded")
	ErrInvalidAssetID           = errors.New("invalid asset id")
	ErrInvalidErrorCode         = errors.New("invalid error code")
	ErrNotTabular               = errors.New("result does not hold tabular data")
	ErrMissingColumn            = errors.New("missing required column")
	ErrMissingField             = errors.New("missing field")
	ErrMissingValue             = errors.New("missing required value")
	ErrInvalidValue             = errors.New("invalid value")
	ErrMalformedJSON            = errors.New("not a single JSON document")
	ErrOutOfRange               = errors.New("value out of int64 range")
	ErrDuplicateColumn          = errors.New("duplicate column")
	ErrRaggedRow                = errors.New("row length does not match header")
	ErrEmptyInput               = errors.New("input has no header row")
	ErrNoEventDispatcher        = errors.New("no event dispatcher configured")
	ErrTokenExpired             = errors.New("access token expired")
	ErrCacheKeyNotFound         = errors.New("key not found")
	ErrCacheEntryExpired        = errors.New("entry expired")
	ErrCacheDisabled            = errors.New("cache disabled")
	ErrKeyNotFoundInAnyCache    = errors.New("key not found in any cache")
	ErrUnsupportedCacheType     = errors.New("unsupported cache type")
	ErrNATSConfigRequired       = errors.New("NATS configuration required for NATS cache")
	ErrUnsupportedPayloadFormat = errors.New("unsupported payload format")
)

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

// IsForbidden reports whether err is a 403 from the API.
func IsForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}

// IsRateLimited reports whether err is a 429 from the API.
func IsRateLimited(err error) bool {
	return hasStatus(err, http.StatusTooManyRequests)
}

func hasStatus(err error, status int) bool {
	apiErr := &APIError{}
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == status
	}

	return false
}
