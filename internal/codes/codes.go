// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package codes defines the single error-code vocabulary shared across
// HTTP, WebSocket, and gRPC transports.
package codes

import "net/http"

// Code is a canonical transport-independent error kind.
type Code string

const (
	NotReady         Code = "NOT_READY"
	Exited           Code = "EXITED"
	WriterBusy       Code = "WRITER_BUSY"
	Unauthorized     Code = "UNAUTHORIZED"
	BadRequest       Code = "BAD_REQUEST"
	NoDriver         Code = "NO_DRIVER"
	AgentBusy        Code = "AGENT_BUSY"
	NoPrompt         Code = "NO_PROMPT"
	SwitchInProgress Code = "SWITCH_IN_PROGRESS"
	Internal         Code = "INTERNAL"
)

// HTTPStatus maps a code to its HTTP status.
func (c Code) HTTPStatus() int {
	switch c {
	case NotReady:
		return http.StatusServiceUnavailable
	case Exited:
		return http.StatusGone
	case WriterBusy:
		return http.StatusConflict
	case Unauthorized:
		return http.StatusUnauthorized
	case BadRequest:
		return http.StatusBadRequest
	case NoDriver:
		return http.StatusUnprocessableEntity
	case AgentBusy:
		return http.StatusConflict
	case NoPrompt:
		return http.StatusConflict
	case SwitchInProgress:
		return http.StatusConflict
	case Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps a code to the nearest google.golang.org/grpc/codes value,
// expressed as its numeric wire value to avoid importing the grpc/codes
// package from this leaf (transport/grpcapi does the conversion at the
// boundary where the real package is already imported).
func (c Code) GRPCCode() uint32 {
	switch c {
	case NotReady:
		return 14 // Unavailable
	case Exited:
		return 9 // FailedPrecondition
	case WriterBusy:
		return 10 // Aborted
	case Unauthorized:
		return 16 // Unauthenticated
	case BadRequest:
		return 3 // InvalidArgument
	case NoDriver:
		return 9 // FailedPrecondition
	case AgentBusy:
		return 10 // Aborted
	case NoPrompt:
		return 9 // FailedPrecondition
	case SwitchInProgress:
		return 10 // Aborted
	case Internal:
		return 13 // Internal
	default:
		return 2 // Unknown
	}
}

// Error pairs a Code with a human-readable message, implementing error.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// New constructs an *Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}
