// Package errors provides a structured error system for meshcast with error codes, categories, and context.
package errors

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"
)

// ErrorCode represents a structured error code for meshcast operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration Errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave       ErrorCode = "CONFIG_SAVE"

	// Transport Errors
	ErrCodeTransport        ErrorCode = "TRANSPORT_FAILED"
	ErrCodeTransportClosed  ErrorCode = "TRANSPORT_CLOSED"
	ErrCodeMalformedMessage ErrorCode = "MALFORMED_MESSAGE"
	ErrCodeHandshake        ErrorCode = "HANDSHAKE_FAILED"

	// Protocol Errors
	ErrCodeProtocol     ErrorCode = "PROTOCOL_VIOLATION"
	ErrCodeNotSupported ErrorCode = "PROTOCOL_NOT_SUPPORTED"
	ErrCodeUnknownPeer  ErrorCode = "PROTOCOL_UNKNOWN_PEER"

	// Topology Errors
	ErrCodeTopologyMiss ErrorCode = "TOPOLOGY_MISS"

	// Internal System Errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryTransport     ErrorCategory = "transport"
	CategoryProtocol      ErrorCategory = "protocol"
	CategoryTopology      ErrorCategory = "topology"
	CategoryInternal      ErrorCategory = "internal"
)

// MeshcastError represents a structured error with context and metadata.
type MeshcastError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`

	// Fatal errors terminate the node; everything else is logged and dropped.
	Fatal bool `json:"fatal"`
}

// Error implements the error interface.
func (e *MeshcastError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Component != "" {
		if e.Operation != "" {
			msg = fmt.Sprintf("[%s:%s] %s", e.Component, e.Operation, msg)
		} else {
			msg = fmt.Sprintf("[%s] %s", e.Component, msg)
		}
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *MeshcastError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *MeshcastError) Is(target error) bool {
	if other, ok := target.(*MeshcastError); ok {
		return e.Code == other.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *MeshcastError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Fatal {
		parts = append(parts, "Fatal=true")
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, e.Context[k]))
		}
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("MeshcastError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *MeshcastError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new meshcast error with default values.
func NewError(code ErrorCode, message string) *MeshcastError {
	return &MeshcastError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
		Context:   make(map[string]string),
		Fatal:     IsFatalByDefault(code),
	}
}

// Wrap creates a new error carrying cause.
func Wrap(cause error, code ErrorCode, message string) *MeshcastError {
	return NewError(code, message).WithCause(cause)
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "TRANSPORT_") || strings.HasPrefix(codeStr, "MALFORMED_") ||
		strings.HasPrefix(codeStr, "HANDSHAKE_"):
		return CategoryTransport
	case strings.HasPrefix(codeStr, "PROTOCOL_"):
		return CategoryProtocol
	case strings.HasPrefix(codeStr, "TOPOLOGY_"):
		return CategoryTopology
	default:
		return CategoryInternal
	}
}

// IsFatalByDefault reports whether an error with this code should terminate the node.
// Transport and configuration faults are unrecoverable; protocol and topology
// faults are recovered locally.
func IsFatalByDefault(code ErrorCode) bool {
	switch GetCategory(code) {
	case CategoryConfiguration, CategoryTransport:
		return code != ErrCodeTransportClosed
	default:
		return false
	}
}

// RPCCode returns the Maelstrom error code used when the error is reported to a peer.
func RPCCode(code ErrorCode) int {
	switch code {
	case ErrCodeNotSupported:
		return maelstrom.NotSupported
	case ErrCodeMalformedMessage, ErrCodeProtocol:
		return maelstrom.MalformedRequest
	case ErrCodeUnknownPeer:
		return maelstrom.NodeNotFound
	case ErrCodeTopologyMiss:
		return maelstrom.TemporarilyUnavailable
	default:
		return maelstrom.Crash
	}
}

// ToRPC converts the error to a Maelstrom RPC error.
func (e *MeshcastError) ToRPC() *maelstrom.RPCError {
	return maelstrom.NewRPCError(RPCCode(e.Code), e.Message)
}

// WithContext adds contextual information to an error
func (e *MeshcastError) WithContext(key, value string) *MeshcastError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *MeshcastError) WithDetail(key string, value interface{}) *MeshcastError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *MeshcastError) WithComponent(component string) *MeshcastError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *MeshcastError) WithOperation(operation string) *MeshcastError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *MeshcastError) WithCause(cause error) *MeshcastError {
	e.Cause = cause
	return e
}

// IsFatal reports whether err carries a fatal MeshcastError anywhere in its chain.
func IsFatal(err error) bool {
	for err != nil {
		if me, ok := err.(*MeshcastError); ok && me.Fatal {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CodeOf returns the code of the first MeshcastError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	for err != nil {
		if me, ok := err.(*MeshcastError); ok {
			return me.Code, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return "", false
		}
		err = u.Unwrap()
	}
	return "", false
}
