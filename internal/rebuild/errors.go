package rebuild

import (
	"errors"
	"fmt"

	"github.com/roach88/parcad/internal/document"
)

// Code categorizes a feature's build failure.
type Code string

const (
	// CodeNoClosedProfile means the sketch has no closed loop to sweep.
	CodeNoClosedProfile Code = "NO_CLOSED_PROFILE"

	// CodeSelfIntersecting means a profile crosses itself.
	CodeSelfIntersecting Code = "SELF_INTERSECTING"

	// CodeInvalidReference means an input did not resolve.
	CodeInvalidReference Code = "INVALID_REFERENCE"

	// CodeBuildError covers every other failure, including bad expressions.
	CodeBuildError Code = "BUILD_ERROR"
)

// BuildError is recorded for every feature whose status is error.
//
// Ref and Candidates are set for INVALID_REFERENCE when the failing input was
// a persistent reference; Candidates are tokens a user may repair to.
type BuildError struct {
	Feature    document.FeatureID
	Code       Code
	Message    string
	Param      string
	Ref        string
	Candidates []string
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (feature=%s, param=%s)", e.Code, e.Message, e.Feature, e.Param)
	}
	return fmt.Sprintf("%s: %s (feature=%s)", e.Code, e.Message, e.Feature)
}

// IsBuildError reports whether err is a BuildError with the given code.
// An empty code matches any BuildError.
func IsBuildError(err error, code Code) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return code == "" || be.Code == code
	}
	return false
}

// KernelError is returned by Kernel implementations. The orchestrator copies
// its Code into the feature's BuildError; errors of any other type map to
// BUILD_ERROR.
type KernelError struct {
	Code    Code
	Message string
}

// Error implements the error interface.
func (e *KernelError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewKernelError builds a KernelError with a formatted message.
func NewKernelError(code Code, format string, args ...any) *KernelError {
	return &KernelError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// kernelCode maps a kernel failure to a build error code.
func kernelCode(err error) Code {
	var ke *KernelError
	if errors.As(err, &ke) {
		switch ke.Code {
		case CodeNoClosedProfile, CodeSelfIntersecting, CodeInvalidReference, CodeBuildError:
			return ke.Code
		}
	}
	return CodeBuildError
}
