package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeNotImplemented     ErrorCode = "COMMON_016"
)

// Short aliases used by factories.
const (
	CodeOK       = ErrorCode("OK")
	CodeUnknown  = ErrorCode("UNKNOWN")
	CodeInternal = ErrCodeInternal
	CodeNotFound = ErrCodeNotFound
	CodeConflict = ErrCodeConflict
)

// Franchise Module Error Codes
const (
	ErrCodeFranchiseNotFound      ErrorCode = "FRN_001"
	ErrCodeRenewalNotFound        ErrorCode = "FRN_002"
	ErrCodeRenewalSuperseded      ErrorCode = "FRN_003"
	ErrCodeAssociationNotFound    ErrorCode = "FRN_004"
	ErrCodeInvalidTransition      ErrorCode = "FRN_010"
	ErrCodeIneligibleWindow       ErrorCode = "FRN_011"
	ErrCodeConflictingRecord      ErrorCode = "FRN_012"
	ErrCodeConcurrentModification ErrorCode = "FRN_013"
)

// Rate Sheet Module Error Codes
const (
	ErrCodeRateSheetNotFound    ErrorCode = "RTS_001"
	ErrCodeRateSheetFeeNotFound ErrorCode = "RTS_002"
	ErrCodeRateSheetLocked      ErrorCode = "RTS_003"
)

// notFoundCodes lists every code that belongs to the not-found class.
var notFoundCodes = map[ErrorCode]bool{
	ErrCodeNotFound:             true,
	ErrCodeFranchiseNotFound:    true,
	ErrCodeRenewalNotFound:      true,
	ErrCodeRenewalSuperseded:    true,
	ErrCodeAssociationNotFound:  true,
	ErrCodeRateSheetNotFound:    true,
	ErrCodeRateSheetFeeNotFound: true,
}

// conflictCodes lists every code that belongs to the conflict class.
var conflictCodes = map[ErrorCode]bool{
	ErrCodeConflict:               true,
	ErrCodeConflictingRecord:      true,
	ErrCodeConcurrentModification: true,
	ErrCodeRateSheetLocked:        true,
}

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusBadRequest,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeFranchiseNotFound:      http.StatusNotFound,
	ErrCodeRenewalNotFound:        http.StatusNotFound,
	ErrCodeRenewalSuperseded:      http.StatusNotFound,
	ErrCodeAssociationNotFound:    http.StatusNotFound,
	ErrCodeInvalidTransition:      http.StatusConflict,
	ErrCodeIneligibleWindow:       http.StatusUnprocessableEntity,
	ErrCodeConflictingRecord:      http.StatusConflict,
	ErrCodeConcurrentModification: http.StatusConflict,

	ErrCodeRateSheetNotFound:    http.StatusNotFound,
	ErrCodeRateSheetFeeNotFound: http.StatusNotFound,
	ErrCodeRateSheetLocked:      http.StatusConflict,
}

// ErrorCodeMessage holds the default message for each ErrorCode.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeNotImplemented:     "not implemented",

	ErrCodeFranchiseNotFound:      "franchise not found",
	ErrCodeRenewalNotFound:        "franchise renewal not found",
	ErrCodeRenewalSuperseded:      "franchise renewal is superseded by a newer renewal",
	ErrCodeAssociationNotFound:    "TODA association not found",
	ErrCodeInvalidTransition:      "approval status transition not allowed",
	ErrCodeIneligibleWindow:       "outside of the renewal window",
	ErrCodeConflictingRecord:      "vehicle already registered",
	ErrCodeConcurrentModification: "record was modified concurrently",

	ErrCodeRateSheetNotFound:    "rate sheet not found",
	ErrCodeRateSheetFeeNotFound: "rate sheet fee not found",
	ErrCodeRateSheetLocked:      "rate sheet already priced an approved transaction",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
