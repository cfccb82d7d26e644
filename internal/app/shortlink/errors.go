package shortlink

import (
	"errors"
	"fmt"
	"strings"
)

// 可恢复的单条错误：只影响当前 URL，不会被自动重试。
var (
	ErrOffline         = errors.New("offline mode")
	ErrUnresolvedGroup = errors.New("cannot determine group guid")
	ErrTransport       = errors.New("transport failure")
	ErrRemoteRejected  = errors.New("bitly request rejected")
)

// ErrProtocolViolation 表示远端返回了约定之外的状态码或响应体，属于致命错误，调用方应直接终止进程。
var ErrProtocolViolation = errors.New("API violation")

type OfflineError struct {
	Op string
}

func (e *OfflineError) Error() string {
	return fmt.Sprintf("cannot %s in offline mode", e.Op)
}

func (e *OfflineError) Unwrap() error { return ErrOffline }

type UnresolvedGroupError struct {
	Reason string
}

func (e *UnresolvedGroupError) Error() string {
	return fmt.Sprintf("cannot determine group GUID: %s", e.Reason)
}

func (e *UnresolvedGroupError) Unwrap() error { return ErrUnresolvedGroup }

type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// FieldError 是错误响应里针对单个字段的说明。
type FieldError struct {
	Field     string `json:"field"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// ErrorEnvelope 是 Bitly 的结构化错误响应体。
type ErrorEnvelope struct {
	Message     string       `json:"message"`
	Description string       `json:"description,omitempty"`
	Resource    string       `json:"resource,omitempty"`
	Errors      []FieldError `json:"errors,omitempty"`
}

// RemoteError 对应远端返回的、已知状态码的错误响应。
type RemoteError struct {
	Status   int
	Envelope ErrorEnvelope
}

func (e *RemoteError) Error() string {
	resource, description := e.Envelope.Resource, e.Envelope.Description
	if resource == "" {
		resource = "?"
	}
	if description == "" {
		description = "?"
	}
	msg := fmt.Sprintf("Bitly request failed with %s (%s): %s", e.Envelope.Message, resource, description)
	if len(e.Envelope.Errors) > 0 {
		fields := make([]string, 0, len(e.Envelope.Errors))
		for _, f := range e.Envelope.Errors {
			fields = append(fields, fmt.Sprintf("%s=%s(%s)", f.Field, f.ErrorCode, f.Message))
		}
		msg += " | " + strings.Join(fields, ", ")
	}
	return msg
}

func (e *RemoteError) Unwrap() error { return ErrRemoteRejected }

type ProtocolError struct {
	Op     string
	Status int
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: unexpected status code %d", ErrProtocolViolation, e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s: invalid response (status %d): %v", ErrProtocolViolation, e.Op, e.Status, e.Err)
}

func (e *ProtocolError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProtocolViolation}
	}
	return []error{ErrProtocolViolation, e.Err}
}

// Kind 返回错误类别，用作指标 label 和日志字段。
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrProtocolViolation):
		return "protocol_violation"
	case errors.Is(err, ErrOffline):
		return "offline"
	case errors.Is(err, ErrUnresolvedGroup):
		return "unresolved_group"
	case errors.Is(err, ErrRemoteRejected):
		return "remote_rejected"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrInvalidURL):
		return "invalid_input"
	default:
		return "other"
	}
}

// IsFatal 报告 err 是否要求调用方终止整个进程。
func IsFatal(err error) bool {
	return errors.Is(err, ErrProtocolViolation)
}
