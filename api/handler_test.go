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

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vchain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// node bundles a backend with a full transport stack, so these tests cover
// the same path a real client hits: HTTP body in, JSON-RPC envelope out.
type node struct {
	backend *vchain.Backend
	server  *vchain.RPCServer
}

func newNode(t *testing.T) *node {
	t.Helper()
	backend := vchain.NewBackend(&vchain.BackendConfig{StateCacheDir: t.TempDir()})
	server := vchain.NewRPCServer(&vchain.RPCConfig{ListenAddr: "127.0.0.1:0"})
	server.SetHandler(NewHandler(backend, nil))
	return &node{backend: backend, server: server}
}

func (n *node) call(t *testing.T, method string, params string) map[string]interface{} {
	t.Helper()
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"%s","params":%s}`, method, params)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	n.server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func rpcErrorCode(t *testing.T, resp map[string]interface{}) int {
	t.Helper()
	errObj, ok := resp["error"].(map[string]interface{})
	require.True(t, ok, "expected an error object, got %v", resp)
	return int(errObj["code"].(float64))
}

func devAddress(n *node, i int) string {
	return strings.ToLower(n.backend.DevAccounts()[i].Address.Hex())
}

func TestHandlerChainID(t *testing.T) {
	n := newNode(t)
	resp := n.call(t, "eth_chainId", `[]`)
	assert.Equal(t, "0x7a69", resp["result"])
}

func TestHandlerNetAndWeb3(t *testing.T) {
	n := newNode(t)
	assert.Equal(t, "31337", n.call(t, "net_version", `[]`)["result"])
	assert.Equal(t, true, n.call(t, "net_listening", `[]`)["result"])
	assert.Equal(t, "0x0", n.call(t, "net_peerCount", `[]`)["result"])
	assert.Equal(t, vchain.ClientVersion(), n.call(t, "web3_clientVersion", `[]`)["result"])

	// keccak256("")
	resp := n.call(t, "web3_sha3", `["0x"]`)
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", resp["result"])
}

func TestHandlerUnknownMethod(t *testing.T) {
	n := newNode(t)
	resp := n.call(t, "eth_noSuchMethod", `[]`)
	assert.Equal(t, -32601, rpcErrorCode(t, resp))
}

func TestHandlerBadParamsIsInvalidParams(t *testing.T) {
	n := newNode(t)
	for method, params := range map[string]string{
		"eth_getBalance":           `[]`,
		"eth_getBlockByNumber":     `["nonsense"]`,
		"eth_getTransactionByHash": `[]`,
		"eth_chainId":              `["extra"]`,
		"eth_sendTransaction":      `[{"to":"0x0000000000000000000000000000000000000001"}]`,
	} {
		resp := n.call(t, method, params)
		assert.Equal(t, -32602, rpcErrorCode(t, resp), "method: %s", method)
	}
}

func TestHandlerGetBalance(t *testing.T) {
	n := newNode(t)
	// 10000 ether
	const want = "0x21e19e0c9bab2400000"

	resp := n.call(t, "eth_getBalance", `["`+devAddress(n, 0)+`","latest"]`)
	assert.Equal(t, want, resp["result"])

	// the block param is optional and the address may arrive bare
	resp = n.call(t, "eth_getBalance", `"`+devAddress(n, 0)+`"`)
	assert.Equal(t, want, resp["result"])

	// decimal block numbers are accepted too
	resp = n.call(t, "eth_getBalance", `["`+devAddress(n, 0)+`","0"]`)
	assert.Equal(t, want, resp["result"])

	// a block past the head is a server error, not invalid params
	resp = n.call(t, "eth_getBalance", `["`+devAddress(n, 0)+`","0x63"]`)
	assert.Equal(t, -32000, rpcErrorCode(t, resp))
}

func TestHandlerTransferRoundTrip(t *testing.T) {
	n := newNode(t)
	from := devAddress(n, 0)
	to := devAddress(n, 1)

	resp := n.call(t, "eth_sendTransaction", `[{"from":"`+from+`","to":"`+to+`","value":"0xde0b6b3a7640000"}]`)
	txHash, ok := resp["result"].(string)
	require.True(t, ok, "expected a tx hash, got %v", resp)

	assert.Equal(t, "0x1", n.call(t, "eth_blockNumber", `[]`)["result"])

	receipt := n.call(t, "eth_getTransactionReceipt", `["`+txHash+`"]`)["result"].(map[string]interface{})
	assert.Equal(t, "0x1", receipt["status"])
	assert.Equal(t, from, receipt["from"])
	assert.Equal(t, "0x1", receipt["blockNumber"])

	tx := n.call(t, "eth_getTransactionByHash", `["`+txHash+`"]`)["result"].(map[string]interface{})
	assert.Equal(t, to, tx["to"])

	block := n.call(t, "eth_getBlockByNumber", `["0x1",false]`)["result"].(map[string]interface{})
	hashes, ok := block["transactions"].([]interface{})
	require.True(t, ok)
	require.Len(t, hashes, 1)
	assert.Equal(t, txHash, hashes[0])

	count := n.call(t, "eth_getTransactionCount", `["`+from+`","latest"]`)
	assert.Equal(t, "0x1", count["result"])
}

func TestHandlerUnknownBlockIsNull(t *testing.T) {
	n := newNode(t)
	resp := n.call(t, "eth_getBlockByNumber", `["0x63",false]`)
	// the result member must exist and hold null, not be omitted
	assert.Contains(t, resp, "result")
	assert.Nil(t, resp["result"])
	assert.NotContains(t, resp, "error")

	resp = n.call(t, "eth_getTransactionByHash", `["0x00000000000000000000000000000000000000000000000000000000000000aa"]`)
	assert.Contains(t, resp, "result")
	assert.Nil(t, resp["result"])
}

func TestHandlerCallAndRevert(t *testing.T) {
	n := newNode(t)
	contract := "0x00000000000000000000000000000000000c0de0"

	// returns 42
	n.backend.SetCode(common.HexToAddress(contract), []byte{0x60, 0x2a, 0x60, 0x00, 0x52, 0x60, 0x20, 0x60, 0x00, 0xf3})
	resp := n.call(t, "eth_call", `[{"to":"`+contract+`"},"latest"]`)
	assert.Equal(t, "0x000000000000000000000000000000000000000000000000000000000000002a", resp["result"])

	// always reverts
	n.backend.SetCode(common.HexToAddress(contract), []byte{0x60, 0x00, 0x60, 0x00, 0xfd})
	resp = n.call(t, "eth_call", `[{"to":"`+contract+`"},"latest"]`)
	assert.Equal(t, 3, rpcErrorCode(t, resp))
}

func TestHandlerEstimateGas(t *testing.T) {
	n := newNode(t)
	resp := n.call(t, "eth_estimateGas", `[{"from":"`+devAddress(n, 0)+`","to":"`+devAddress(n, 1)+`","value":"0x1"}]`)
	assert.Equal(t, "0x5208", resp["result"])
}

func TestHandlerCheats(t *testing.T) {
	n := newNode(t)
	addr := "0x00000000000000000000000000000000000beef0"

	n.call(t, "anvil_setBalance", `["`+addr+`","0x1234"]`)
	assert.Equal(t, "0x1234", n.call(t, "eth_getBalance", `["`+addr+`"]`)["result"])

	// hardhat alias hits the same cheat
	n.call(t, "hardhat_setBalance", `["`+addr+`","0x5678"]`)
	assert.Equal(t, "0x5678", n.call(t, "eth_getBalance", `["`+addr+`"]`)["result"])

	resp := n.call(t, "anvil_setStorageAt", `["`+addr+`","0x0","0xff"]`)
	assert.Equal(t, true, resp["result"])
	storage := n.call(t, "eth_getStorageAt", `["`+addr+`","0x0","latest"]`)
	assert.Equal(t, "0x00000000000000000000000000000000000000000000000000000000000000ff", storage["result"])
}

func TestHandlerSnapshotRevert(t *testing.T) {
	n := newNode(t)
	snapID := n.call(t, "evm_snapshot", `[]`)["result"].(string)

	n.call(t, "evm_mine", `[]`)
	assert.Equal(t, "0x1", n.call(t, "eth_blockNumber", `[]`)["result"])

	assert.Equal(t, true, n.call(t, "evm_revert", `["`+snapID+`"]`)["result"])
	assert.Equal(t, "0x0", n.call(t, "eth_blockNumber", `[]`)["result"])

	// a second revert to the same id fails, snapshots are consumed
	assert.Equal(t, false, n.call(t, "evm_revert", `["`+snapID+`"]`)["result"])
}

func TestHandlerImpersonation(t *testing.T) {
	n := newNode(t)
	whale := "0x000000000000000000000000000000000000ea7e"
	to := devAddress(n, 0)

	n.call(t, "anvil_setBalance", `["`+whale+`","0xde0b6b3a7640000"]`)

	resp := n.call(t, "eth_sendTransaction", `[{"from":"`+whale+`","to":"`+to+`","value":"0x1"}]`)
	assert.Equal(t, -32000, rpcErrorCode(t, resp))

	n.call(t, "anvil_impersonateAccount", `["`+whale+`"]`)
	resp = n.call(t, "eth_sendTransaction", `[{"from":"`+whale+`","to":"`+to+`","value":"0x1"}]`)
	txHash, ok := resp["result"].(string)
	require.True(t, ok, "expected a tx hash, got %v", resp)

	tx := n.call(t, "eth_getTransactionByHash", `["`+txHash+`"]`)["result"].(map[string]interface{})
	assert.Equal(t, whale, tx["from"])
}
