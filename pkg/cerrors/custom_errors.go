package cerrors

import (
	"encoding/json"

	"github.com/palantir/stacktrace"
)

type ErrorType string

const (
	ErrorTypeNonUserFriendly      ErrorType = "NON_USER_FRIENDLY_ERROR"
	ErrorTypeGeneric              ErrorType = "GENERIC_ERROR"
	ErrorTypeConfiguration        ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeEnvironmentDetection ErrorType = "ENVIRONMENT_DETECTION_ERROR"
	ErrorTypeChaosInject          ErrorType = "CHAOS_INJECT_ERROR"
	ErrorTypeChaosRevert          ErrorType = "CHAOS_REVERT_ERROR"
	ErrorTypeLifecycle            ErrorType = "LIFECYCLE_ERROR"
	ErrorTypeUnsupportedType      ErrorType = "UNSUPPORTED_EXPERIMENT_TYPE"
)

type Error struct {
	Source    string    `json:"source,omitempty"`
	ErrorCode ErrorType `json:"errorCode,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Target    string    `json:"target,omitempty"`
}

func (e Error) Error() string {
	return convertToJSON(e)
}

func (e Error) UserFriendly() bool {
	return true
}

func (e Error) ErrorType() ErrorType {
	if e.ErrorCode == "" {
		return ErrorTypeGeneric
	}
	return e.ErrorCode
}

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is marked as safe to present to the caller
func IsUserFriendly(err error) bool {
	ufe, ok := err.(userFriendly)
	return ok && ufe.UserFriendly()
}

// GetErrorType returns the type of error if the error is user-friendly
func GetErrorType(err error) ErrorType {
	if ufe, ok := err.(userFriendly); ok {
		return ufe.ErrorType()
	}
	return ErrorTypeNonUserFriendly
}

func GetRootCauseAndErrorCode(err error) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return err.Error(), errorType
	}
	return rootCause.Error(), errorType
}

func convertToJSON(e Error) string {
	b, err := json.Marshal(e)
	if err != nil {
		return e.Reason
	}
	return string(b)
}

// PreserveError wraps the json marshalled error string so that the
// original error code survives stacktrace propagation
func PreserveError(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
