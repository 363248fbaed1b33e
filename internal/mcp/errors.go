// Package mcp implements the Model Context Protocol (MCP) server for zotra.
package mcp

import (
	"context"
	"errors"
	"fmt"

	zerrors "zotra/internal/errors"
)

// Custom MCP error codes for zotra.
const (
	// ErrCodeIndexEmpty indicates no chunks exist in the vector index.
	ErrCodeIndexEmpty = -32001

	// ErrCodeModelFailed indicates an embedding or chat model call failed.
	ErrCodeModelFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeLibraryFailed indicates the Zotero library could not be reached.
	ErrCodeLibraryFailed = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	}

	var ze *zerrors.ZotraError
	if errors.As(err, &ze) {
		return mapZotraError(ze)
	}

	return &MCPError{
		Code:    ErrCodeInternalError,
		Message: "Internal server error.",
	}
}

// mapZotraError converts a ZotraError to an MCPError.
func mapZotraError(ze *zerrors.ZotraError) *MCPError {
	message := ze.Message
	if ze.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ze.Message, ze.Suggestion)
	}

	switch ze.Code {
	case zerrors.ErrCodeQueryEmpty, zerrors.ErrCodeInvalidQuery,
		zerrors.ErrCodeInvalidSelector, zerrors.ErrCodeInvalidInput:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case zerrors.ErrCodeModelAPI, zerrors.ErrCodeEmbeddingFailed, zerrors.ErrCodeSchemaMismatch:
		return &MCPError{Code: ErrCodeModelFailed, Message: message}
	case zerrors.ErrCodeLibraryAPI:
		return &MCPError{Code: ErrCodeLibraryFailed, Message: message}
	case zerrors.ErrCodeCorruptIndex:
		return &MCPError{Code: ErrCodeIndexEmpty, Message: message}
	}

	switch ze.Category {
	case zerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case zerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
