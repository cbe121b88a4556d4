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
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBackend(t *testing.T) *Backend {
	t.Helper()
	return NewBackend(&BackendConfig{StateCacheDir: t.TempDir()})
}

// returns 42: PUSH1 0x2a PUSH1 0x00 MSTORE PUSH1 0x20 PUSH1 0x00 RETURN
var returns42Code = common.FromHex("0x602a60005260206000f3")

// always reverts with no data: PUSH1 0x00 PUSH1 0x00 REVERT
var revertCode = common.FromHex("0x60006000fd")

// emits one empty log then stops: PUSH1 0x00 PUSH1 0x00 LOG0 STOP
var logCode = common.FromHex("0x60006000a000")

func TestBackendGenesis(t *testing.T) {
	b := testBackend(t)

	assert.Equal(t, uint64(0), b.BlockNumber())
	assert.Equal(t, DefaultChainID, b.ChainID())

	genesis, err := b.BlockByNumber(0)
	require.NoError(t, err)
	assert.Equal(t, genesis.Hash(), b.Head().Hash())

	accounts := b.DevAccounts()
	require.Len(t, accounts, DefaultDevAccounts)
	for _, dev := range accounts {
		balance, err := b.BalanceAt(dev.Address, 0)
		require.NoError(t, err)
		assert.Equal(t, DefaultDevBalance, balance)
	}
}

func TestBackendDevAccountsAreStable(t *testing.T) {
	a := DeriveDevAccounts(3)
	b := DeriveDevAccounts(3)
	for i := range a {
		assert.Equal(t, a[i].Address, b[i].Address)
	}
}

func TestBackendTransferMinesBlock(t *testing.T) {
	b := testBackend(t)
	from := b.DevAccounts()[0].Address
	to := b.DevAccounts()[1].Address

	hash, err := b.SendTransaction(&CallMsg{
		From:  from,
		To:    &to,
		Value: big.NewInt(1_000_000),
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), b.BlockNumber())

	tx, blockHash, blockNumber, index, err := b.TransactionByHash(hash)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), blockNumber)
	assert.Equal(t, 0, index)
	assert.Equal(t, hash, tx.Hash())

	block, err := b.BlockByHash(blockHash)
	require.NoError(t, err)
	require.Len(t, block.Transactions(), 1)

	receipt, err := b.ReceiptByTxHash(hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, params.TxGas, receipt.GasUsed)
	assert.Equal(t, blockHash, receipt.BlockHash)

	got, err := b.BalanceAt(to, b.BlockNumber())
	require.NoError(t, err)
	want := new(big.Int).Add(DefaultDevBalance, big.NewInt(1_000_000))
	assert.Equal(t, want, got)

	senderBalance, err := b.BalanceAt(from, b.BlockNumber())
	require.NoError(t, err)
	assert.Negative(t, senderBalance.Cmp(DefaultDevBalance))
}

func TestBackendNonceAdvances(t *testing.T) {
	b := testBackend(t)
	from := b.DevAccounts()[0].Address
	to := b.DevAccounts()[1].Address

	for i := 0; i < 3; i++ {
		_, err := b.SendTransaction(&CallMsg{From: from, To: &to, Value: big.NewInt(1)})
		require.NoError(t, err)
	}
	nonce, err := b.NonceAt(from, b.BlockNumber())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), nonce)
	assert.Equal(t, uint64(3), b.BlockNumber())
}

func TestBackendUnknownSenderRejected(t *testing.T) {
	b := testBackend(t)
	to := b.DevAccounts()[0].Address
	_, err := b.SendTransaction(&CallMsg{
		From: common.HexToAddress("0xdead"),
		To:   &to,
	})
	assert.ErrorIs(t, err, ErrUnknownSender)
}

func TestBackendImpersonation(t *testing.T) {
	b := testBackend(t)
	whale := common.HexToAddress("0x00000000000000000000000000000000000beeef")
	to := b.DevAccounts()[0].Address

	b.SetBalance(whale, new(big.Int).Mul(big.NewInt(100), big.NewInt(params.Ether)))
	b.ImpersonateAccount(whale)

	hash, err := b.SendTransaction(&CallMsg{From: whale, To: &to, Value: big.NewInt(777)})
	require.NoError(t, err)

	sender, ok := b.TransactionSender(hash)
	require.True(t, ok)
	assert.Equal(t, whale, sender)

	b.StopImpersonatingAccount(whale)
	_, err = b.SendTransaction(&CallMsg{From: whale, To: &to, Value: big.NewInt(1)})
	assert.ErrorIs(t, err, ErrUnknownSender)

	b.SetAutoImpersonate(true)
	_, err = b.SendTransaction(&CallMsg{From: whale, To: &to, Value: big.NewInt(1)})
	assert.NoError(t, err)
}

func TestBackendRejectedTxLeavesStateUntouched(t *testing.T) {
	b := testBackend(t)
	from := b.DevAccounts()[0].Address
	to := b.DevAccounts()[1].Address

	badNonce := uint64(99)
	_, err := b.SendTransaction(&CallMsg{
		From:  from,
		To:    &to,
		Value: big.NewInt(1),
		Nonce: &badNonce,
	})
	require.Error(t, err)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32003, rpcErr.Code.Int())

	// nothing mined, nothing spent
	assert.Equal(t, uint64(0), b.BlockNumber())
	balance, err := b.BalanceAt(from, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDevBalance, balance)
}

func TestBackendRevertStillMines(t *testing.T) {
	b := testBackend(t)
	from := b.DevAccounts()[0].Address
	contract := common.HexToAddress("0xc0de")
	b.SetCode(contract, revertCode)

	hash, err := b.SendTransaction(&CallMsg{From: from, To: &contract, Gas: 100_000})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), b.BlockNumber())
	receipt, err := b.ReceiptByTxHash(hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
	assert.Empty(t, receipt.Logs)
}

func TestBackendCall(t *testing.T) {
	b := testBackend(t)
	contract := common.HexToAddress("0xc0de")
	b.SetCode(contract, returns42Code)

	res, err := b.Call(&CallMsg{
		From: b.DevAccounts()[0].Address,
		To:   &contract,
	}, b.BlockNumber(), nil)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Len(t, res.ReturnData, 32)
	assert.Equal(t, byte(42), res.ReturnData[31])

	// calls never mine
	assert.Equal(t, uint64(0), b.BlockNumber())
}

func TestBackendCallRevert(t *testing.T) {
	b := testBackend(t)
	contract := common.HexToAddress("0xc0de")
	b.SetCode(contract, revertCode)

	res, err := b.Call(&CallMsg{To: &contract}, b.BlockNumber(), nil)
	require.NoError(t, err)
	assert.Error(t, res.Err)
}

func TestBackendCallWithOverrides(t *testing.T) {
	b := testBackend(t)
	contract := common.HexToAddress("0xc0de")
	code := hexutil.Bytes(returns42Code)

	res, err := b.Call(&CallMsg{To: &contract}, b.BlockNumber(), StateOverride{
		contract: {Code: &code},
	})
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, byte(42), res.ReturnData[31])

	// the override never leaks into canonical state
	got, err := b.CodeAt(contract, b.BlockNumber())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBackendEstimateGasTransfer(t *testing.T) {
	b := testBackend(t)
	to := b.DevAccounts()[1].Address
	gas, err := b.EstimateGas(&CallMsg{
		From:  b.DevAccounts()[0].Address,
		To:    &to,
		Value: big.NewInt(1),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, params.TxGas, gas)
}

func TestBackendEstimateGasRevert(t *testing.T) {
	b := testBackend(t)
	contract := common.HexToAddress("0xc0de")
	b.SetCode(contract, revertCode)

	_, err := b.EstimateGas(&CallMsg{To: &contract}, nil)
	require.Error(t, err)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 3, rpcErr.Code.Int())
}

func TestBackendLogs(t *testing.T) {
	b := testBackend(t)
	from := b.DevAccounts()[0].Address
	contract := common.HexToAddress("0xc0de")
	b.SetCode(contract, logCode)

	hash, err := b.SendTransaction(&CallMsg{From: from, To: &contract, Gas: 100_000})
	require.NoError(t, err)

	logs := b.Logs(FilterQuery{FromBlock: 0, ToBlock: b.BlockNumber()})
	require.Len(t, logs, 1)
	assert.Equal(t, contract, logs[0].Address)
	assert.Equal(t, uint64(1), logs[0].BlockNumber)
	assert.Equal(t, hash, logs[0].TxHash)

	// address filter
	assert.Empty(t, b.Logs(FilterQuery{Addresses: []common.Address{common.HexToAddress("0x01")}}))
	assert.Len(t, b.Logs(FilterQuery{Addresses: []common.Address{contract}}), 1)
}

func TestBackendHistoricState(t *testing.T) {
	b := testBackend(t)
	from := b.DevAccounts()[0].Address
	to := b.DevAccounts()[1].Address

	_, err := b.SendTransaction(&CallMsg{From: from, To: &to, Value: big.NewInt(500)})
	require.NoError(t, err)
	_, err = b.SendTransaction(&CallMsg{From: from, To: &to, Value: big.NewInt(500)})
	require.NoError(t, err)

	atGenesis, err := b.BalanceAt(to, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDevBalance, atGenesis)

	atOne, err := b.BalanceAt(to, 1)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Add(DefaultDevBalance, big.NewInt(500)), atOne)

	atHead, err := b.BalanceAt(to, 2)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Add(DefaultDevBalance, big.NewInt(1000)), atHead)

	_, err = b.BalanceAt(to, 99)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestBackendMine(t *testing.T) {
	b := testBackend(t)
	b.Mine(3, 12)
	assert.Equal(t, uint64(3), b.BlockNumber())

	two, err := b.BlockByNumber(2)
	require.NoError(t, err)
	three, err := b.BlockByNumber(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), three.Time()-two.Time())

	// count 0 still mines one block
	b.Mine(0, 0)
	assert.Equal(t, uint64(4), b.BlockNumber())
}

func TestBackendSetNextBlockTimestamp(t *testing.T) {
	b := testBackend(t)
	head := b.Head()

	assert.Error(t, b.SetNextBlockTimestamp(head.Time()))
	assert.Error(t, b.SetNextBlockTimestamp(head.Time()-1))

	future := head.Time() + 3600
	require.NoError(t, b.SetNextBlockTimestamp(future))
	b.Mine(1, 0)
	assert.Equal(t, future, b.Head().Time())

	// the pin is consumed
	b.Mine(1, 0)
	assert.Greater(t, b.Head().Time(), future)
}

func TestBackendSnapshotRevert(t *testing.T) {
	b := testBackend(t)
	from := b.DevAccounts()[0].Address
	to := b.DevAccounts()[1].Address

	id := b.Snapshot()
	hash, err := b.SendTransaction(&CallMsg{From: from, To: &to, Value: big.NewInt(9000)})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), b.BlockNumber())

	require.NoError(t, b.RevertToSnapshot(id))
	assert.Equal(t, uint64(0), b.BlockNumber())

	_, _, _, _, err = b.TransactionByHash(hash)
	assert.ErrorIs(t, err, ErrTxNotFound)
	_, err = b.BlockByNumber(1)
	assert.ErrorIs(t, err, ErrBlockNotFound)

	balance, err := b.BalanceAt(to, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDevBalance, balance)

	// reverting consumes the snapshot
	assert.ErrorIs(t, b.RevertToSnapshot(id), ErrSnapshotNotFound)
}

func TestBackendRevertConsumesLaterSnapshots(t *testing.T) {
	b := testBackend(t)
	first := b.Snapshot()
	b.Mine(1, 0)
	second := b.Snapshot()
	b.Mine(1, 0)

	require.NoError(t, b.RevertToSnapshot(first))
	assert.ErrorIs(t, b.RevertToSnapshot(second), ErrSnapshotNotFound)
}

func TestBackendTraceTransaction(t *testing.T) {
	b := testBackend(t)
	from := b.DevAccounts()[0].Address
	to := b.DevAccounts()[1].Address

	hash, err := b.SendTransaction(&CallMsg{From: from, To: &to, Value: big.NewInt(123)})
	require.NoError(t, err)

	trace, err := b.TraceTransaction(hash)
	require.NoError(t, err)
	require.NotNil(t, trace)
	assert.Equal(t, from, trace.From)
	assert.Equal(t, to, *trace.To)

	_, err = b.TraceTransaction(common.HexToHash("0x01"))
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestBackendDumpAndLoadState(t *testing.T) {
	b := testBackend(t)
	marker := common.HexToAddress("0x1234")
	b.SetBalance(marker, big.NewInt(42))
	b.SetStorageAt(marker, common.HexToHash("0x01"), common.HexToHash("0xff"))

	dump, err := b.DumpState()
	require.NoError(t, err)

	other := testBackend(t)
	require.NoError(t, other.LoadState(dump))

	balance, err := other.BalanceAt(marker, 0)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), balance)
	slot, err := other.StorageAt(marker, common.HexToHash("0x01"), 0)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xff"), slot)

	// dev accounts outside the dump survive the merge
	devBalance, err := other.BalanceAt(other.DevAccounts()[0].Address, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDevBalance, devBalance)

	assert.Error(t, other.LoadState([]byte("junk")))
}

func TestBackendContractDeployment(t *testing.T) {
	b := testBackend(t)
	from := b.DevAccounts()[0].Address

	// initcode that returns returns42Code as the runtime:
	// PUSH10 <code> PUSH1 0 MSTORE PUSH1 10 PUSH1 22 RETURN
	initcode := common.FromHex("0x69602a60005260206000f3600052600a6016f3")
	hash, err := b.SendTransaction(&CallMsg{From: from, Data: initcode, Gas: 200_000})
	require.NoError(t, err)

	receipt, err := b.ReceiptByTxHash(hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.NotEqual(t, common.Address{}, receipt.ContractAddress)

	code, err := b.CodeAt(receipt.ContractAddress, b.BlockNumber())
	require.NoError(t, err)
	assert.Equal(t, returns42Code, code)

	res, err := b.Call(&CallMsg{To: &receipt.ContractAddress}, b.BlockNumber(), nil)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, byte(42), res.ReturnData[31])
}
