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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodeRoundTrip(t *testing.T) {
	codes := []int{-32700, -32600, -32601, -32602, -32603, -32003, 3, -32000, 0, 42, -1}
	for _, code := range codes {
		assert.Equal(t, code, ErrorCodeFromInt(code).Int())
	}
}

func TestErrorCodeFixedSet(t *testing.T) {
	fixed := []ErrorCode{
		ErrCodeParse, ErrCodeInvalidRequest, ErrCodeMethodNotFound,
		ErrCodeInvalidParams, ErrCodeInternal, ErrCodeTransactionRejected,
		ErrCodeExecution,
	}
	for _, code := range fixed {
		assert.True(t, code.IsFixed(), "code %d", code)
	}
	assert.False(t, ErrorCodeFromInt(-32000).IsFixed())
	assert.False(t, ErrorCodeFromInt(7).IsFixed())
}

func TestServerErrorFallbackMessage(t *testing.T) {
	assert.Equal(t, "Server error", ErrorCodeFromInt(-32042).DefaultMessage())
	assert.Equal(t, "Method not found", ErrCodeMethodNotFound.DefaultMessage())
}

func TestRPCErrorWireShape(t *testing.T) {
	e := MethodNotFoundError()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":-32601,"message":"Method not found"}`, string(data))

	withData := ExecutionError("execution reverted", json.RawMessage(`"0xdeadbeef"`))
	data, err = json.Marshal(withData)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":3,"message":"execution reverted","data":"0xdeadbeef"}`, string(data))
}

func TestRPCErrorAsError(t *testing.T) {
	var err error = TransactionRejectedError("nonce too low")
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, ErrCodeTransactionRejected, rpcErr.Code)
	assert.Equal(t, "-32003: nonce too low", err.Error())
}

func TestRevertErrorDecodesReason(t *testing.T) {
	// abi encoding of Error("nope")
	ret := append([]byte{0x08, 0xc3, 0x79, 0xa0}, make([]byte, 64)...)
	ret[4+31] = 0x20
	ret[4+63] = 0x04
	ret = append(ret, []byte("nope")...)
	ret = append(ret, make([]byte, 28)...)

	e := NewRevertError(errors.New("execution reverted"), ret)
	assert.Equal(t, ErrCodeExecution, e.Code)
	assert.Equal(t, "execution reverted: nope", e.Message)
	assert.NotEmpty(t, e.Data)
}

func TestRevertErrorWithoutData(t *testing.T) {
	e := NewRevertError(errors.New("out of gas"), nil)
	assert.Equal(t, ErrCodeExecution, e.Code)
	assert.Equal(t, "out of gas", e.Message)
	assert.Empty(t, e.Data)
}
