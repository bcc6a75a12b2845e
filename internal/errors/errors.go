// Package errors provides the structured error taxonomy shared by the perception,
// betting and game packages. Codes travel across gRPC as errdetails.ErrorInfo.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain is the ErrorInfo domain attached to outgoing statuses.
const Domain = "dicepilot"

// Code classifies a failure by how the game loop must react to it.
type Code int

const (
	Unknown Code = iota
	// TransientLocal: one capture or local recognition attempt failed; retry within the phase.
	TransientLocal
	// PhaseTimeout: no change or no stability within budget; restart the round wait.
	PhaseTimeout
	// ConfirmationExhausted: remote recognizer unreachable or invalid after retry; fatal.
	ConfirmationExhausted
	// Precondition: missing region or collaborator at start; fatal before bootstrapping.
	Precondition
	// PlacementFailed: bet placement kept failing; fatal.
	PlacementFailed
	// StopCondition: configured stop-loss or take-profit reached.
	StopCondition
	// Cancelled: the session was stopped explicitly.
	Cancelled
)

var codeNames = map[Code]string{
	Unknown:               "UNKNOWN",
	TransientLocal:        "TRANSIENT_LOCAL",
	PhaseTimeout:          "PHASE_TIMEOUT",
	ConfirmationExhausted: "CONFIRMATION_EXHAUSTED",
	Precondition:          "PRECONDITION",
	PlacementFailed:       "PLACEMENT_FAILED",
	StopCondition:         "STOP_CONDITION",
	Cancelled:             "CANCELLED",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// grpcCodeMap maps Code to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	Unknown:               codes.Unknown,
	TransientLocal:        codes.Unavailable,
	PhaseTimeout:          codes.DeadlineExceeded,
	ConfirmationExhausted: codes.FailedPrecondition,
	Precondition:          codes.FailedPrecondition,
	PlacementFailed:       codes.Internal,
	StopCondition:         codes.Aborted,
	Cancelled:             codes.Canceled,
}

// AppError is the base error type with structured code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another AppError by code, so sentinel values work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// GRPCStatus returns a gRPC status with an ErrorInfo detail attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	withInfo, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   e.Code.String(),
		Domain:   Domain,
		Metadata: e.Metadata,
	})
	if err != nil {
		return st
	}
	return withInfo
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError recovers an AppError from a gRPC status carrying ErrorInfo.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: Unknown, Message: err.Error(), Cause: err}
	}
	for _, detail := range st.Details() {
		info, ok := detail.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != Domain {
			continue
		}
		for c, name := range codeNames {
			if name == info.GetReason() {
				return &AppError{Code: c, Message: st.Message(), Metadata: info.GetMetadata(), Cause: err}
			}
		}
	}
	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message(), Cause: err}
}

// grpcToCode maps gRPC codes back to our codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.Unavailable, codes.ResourceExhausted:
		return TransientLocal
	case codes.DeadlineExceeded:
		return PhaseTimeout
	case codes.FailedPrecondition:
		return Precondition
	case codes.Canceled:
		return Cancelled
	default:
		return Unknown
	}
}

// CodeOf returns the code of the first AppError in err's chain, or Unknown.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}

// IsCode checks if an error chain carries a specific code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsFatal reports whether the game loop must stop on err.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case ConfirmationExhausted, Precondition, PlacementFailed, StopCondition:
		return true
	default:
		return false
	}
}
