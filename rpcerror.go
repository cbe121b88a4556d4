// Copyright 2024 The vchain Authors
// This file is part of the vchain library.
//
// The vchain library is free software: you can redistribute it and/or modify
// it under the terms of the MIT Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The vchain library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// MIT Lesser General Public License for more details.
//
// You should have received a copy of the MIT Lesser General Public License
// along with the vchain library. If not, see <https://mit-license.org/>.

package vchain

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrorCode is a JSON-RPC error code. The well-known codes below form a closed
// set; every other integer is an opaque server error. Converting an integer to
// an ErrorCode and back is always the identity.
type ErrorCode int

const (
	ErrCodeParse               ErrorCode = -32700
	ErrCodeInvalidRequest      ErrorCode = -32600
	ErrCodeMethodNotFound      ErrorCode = -32601
	ErrCodeInvalidParams       ErrorCode = -32602
	ErrCodeInternal            ErrorCode = -32603
	ErrCodeTransactionRejected ErrorCode = -32003
	ErrCodeExecution           ErrorCode = 3
)

// ErrorCodeFromInt maps an integer to its ErrorCode. Integers outside the
// fixed table stay what they are: an opaque server error code.
func ErrorCodeFromInt(code int) ErrorCode {
	return ErrorCode(code)
}

func (c ErrorCode) Int() int {
	return int(c)
}

// IsFixed reports whether c is one of the well-known codes.
func (c ErrorCode) IsFixed() bool {
	switch c {
	case ErrCodeParse, ErrCodeInvalidRequest, ErrCodeMethodNotFound,
		ErrCodeInvalidParams, ErrCodeInternal, ErrCodeTransactionRejected,
		ErrCodeExecution:
		return true
	}
	return false
}

// DefaultMessage returns the immutable human-readable message for a fixed
// code, or the generic server-error message otherwise.
func (c ErrorCode) DefaultMessage() string {
	switch c {
	case ErrCodeParse:
		return "Parse error"
	case ErrCodeInvalidRequest:
		return "Invalid request"
	case ErrCodeMethodNotFound:
		return "Method not found"
	case ErrCodeInvalidParams:
		return "Invalid params"
	case ErrCodeInternal:
		return "Internal error"
	case ErrCodeTransactionRejected:
		return "Transaction rejected"
	case ErrCodeExecution:
		return "Execution error"
	}
	return "Server error"
}

// RPCError is the wire-visible JSON-RPC error object.
type RPCError struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func NewRPCError(code ErrorCode, message string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
	}
}

func NewRPCErrorCause(code ErrorCode, err error) *RPCError {
	return &RPCError{
		Code:    code,
		Message: err.Error(),
	}
}

// ParseRPCError reports a malformed request body. Fixed message.
func ParseRPCError() *RPCError {
	return NewRPCError(ErrCodeParse, ErrCodeParse.DefaultMessage())
}

// InvalidRequestError reports a structurally invalid envelope. Fixed message.
func InvalidRequestError() *RPCError {
	return NewRPCError(ErrCodeInvalidRequest, ErrCodeInvalidRequest.DefaultMessage())
}

// MethodNotFoundError reports an unknown method. Fixed message.
func MethodNotFoundError() *RPCError {
	return NewRPCError(ErrCodeMethodNotFound, ErrCodeMethodNotFound.DefaultMessage())
}

func InvalidParamsError(message string) *RPCError {
	return NewRPCError(ErrCodeInvalidParams, message)
}

func InternalError() *RPCError {
	return NewRPCError(ErrCodeInternal, ErrCodeInternal.DefaultMessage())
}

func InternalErrorWith(message string) *RPCError {
	return NewRPCError(ErrCodeInternal, message)
}

func TransactionRejectedError(message string) *RPCError {
	return NewRPCError(ErrCodeTransactionRejected, message)
}

// ExecutionError reports a failed EVM execution. Revert data, when available,
// rides along in the data field as a hex string.
func ExecutionError(message string, data json.RawMessage) *RPCError {
	return &RPCError{
		Code:    ErrCodeExecution,
		Message: message,
		Data:    data,
	}
}

// NewRevertError folds a failed EVM execution into an execution error.
// The raw return data rides along in the data field; a decodable
// Error(string) revert reason is appended to the message.
func NewRevertError(cause error, ret []byte) *RPCError {
	message := "execution reverted"
	if reason, unpackErr := abi.UnpackRevert(ret); unpackErr == nil {
		message = fmt.Sprintf("execution reverted: %s", reason)
	} else if cause != nil {
		message = cause.Error()
	}
	var data json.RawMessage
	if len(ret) > 0 {
		data, _ = json.Marshal(hexutil.Encode(ret))
	}
	return ExecutionError(message, data)
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code.Int(), e.Message)
}
