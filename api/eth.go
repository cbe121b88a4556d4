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
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"vchain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// TransactionArgs is the wire shape of an eth_call / eth_sendTransaction
// payload. Data and Input are aliases; when both are set Input wins.
type TransactionArgs struct {
	From                 *common.Address   `json:"from"`
	To                   *common.Address   `json:"to"`
	Gas                  *hexutil.Uint64   `json:"gas"`
	GasPrice             *hexutil.Big      `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big      `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big      `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big      `json:"value"`
	Nonce                *hexutil.Uint64   `json:"nonce"`
	Data                 *hexutil.Bytes    `json:"data"`
	Input                *hexutil.Bytes    `json:"input"`
	AccessList           *types.AccessList `json:"accessList"`
	ChainID              *hexutil.Big      `json:"chainId"`
}

func (args *TransactionArgs) payload() []byte {
	if args.Input != nil {
		return *args.Input
	}
	if args.Data != nil {
		return *args.Data
	}
	return nil
}

func (args *TransactionArgs) callMsg() *vchain.CallMsg {
	msg := &vchain.CallMsg{
		To:   args.To,
		Data: args.payload(),
	}
	if args.From != nil {
		msg.From = *args.From
	}
	if args.Gas != nil {
		msg.Gas = uint64(*args.Gas)
	}
	if args.GasPrice != nil {
		msg.GasPrice = (*big.Int)(args.GasPrice)
	}
	if args.MaxFeePerGas != nil {
		msg.GasFeeCap = (*big.Int)(args.MaxFeePerGas)
	}
	if args.MaxPriorityFeePerGas != nil {
		msg.GasTipCap = (*big.Int)(args.MaxPriorityFeePerGas)
	}
	if args.Value != nil {
		msg.Value = (*big.Int)(args.Value)
	}
	if args.Nonce != nil {
		n := uint64(*args.Nonce)
		msg.Nonce = &n
	}
	if args.AccessList != nil {
		msg.AccessList = *args.AccessList
	}
	return msg
}

func decodeTransactionArgs(raw json.RawMessage) (*TransactionArgs, error) {
	if isNull(raw) {
		return nil, fmt.Errorf("missing transaction object")
	}
	args := new(TransactionArgs)
	if err := json.Unmarshal(raw, args); err != nil {
		return nil, fmt.Errorf("invalid transaction object: %s", err)
	}
	return args, nil
}

func decodeStateOverride(raw json.RawMessage) (vchain.StateOverride, error) {
	if isNull(raw) {
		return nil, nil
	}
	var overrides vchain.StateOverride
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("invalid state override: %s", err)
	}
	return overrides, nil
}

func decodeAddress(raw json.RawMessage) (common.Address, error) {
	var addr common.Address
	if err := json.Unmarshal(raw, &addr); err != nil {
		return common.Address{}, fmt.Errorf("invalid address: %s", err)
	}
	return addr, nil
}

func decodeHash(raw json.RawMessage) (common.Hash, error) {
	var hash common.Hash
	if err := json.Unmarshal(raw, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("invalid hash: %s", err)
	}
	return hash, nil
}

func decodeBytes(raw json.RawMessage) ([]byte, error) {
	var data hexutil.Bytes
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid byte string: %s", err)
	}
	return data, nil
}

func decodeBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, fmt.Errorf("invalid boolean: %s", err)
	}
	return b, nil
}

func (h *Handler) registerEth() {
	h.register("eth_chainId", h.ethChainID)
	h.register("eth_blockNumber", h.ethBlockNumber)
	h.register("eth_gasPrice", h.ethGasPrice)
	h.register("eth_accounts", h.ethAccounts)
	h.register("eth_syncing", h.ethSyncing)
	h.register("eth_getBalance", h.ethGetBalance)
	h.register("eth_getTransactionCount", h.ethGetTransactionCount)
	h.register("eth_getCode", h.ethGetCode)
	h.register("eth_getStorageAt", h.ethGetStorageAt)
	h.register("eth_getBlockByNumber", h.ethGetBlockByNumber)
	h.register("eth_getBlockByHash", h.ethGetBlockByHash)
	h.register("eth_getTransactionByHash", h.ethGetTransactionByHash)
	h.register("eth_getTransactionReceipt", h.ethGetTransactionReceipt)
	h.register("eth_getBlockReceipts", h.ethGetBlockReceipts)
	h.register("eth_sendTransaction", h.ethSendTransaction)
	h.register("eth_sendRawTransaction", h.ethSendRawTransaction)
	h.register("eth_call", h.ethCall)
	h.register("eth_estimateGas", h.ethEstimateGas)
	h.register("eth_getLogs", h.ethGetLogs)
	h.register("debug_traceTransaction", h.debugTraceTransaction)
	h.register("debug_traceCall", h.debugTraceCall)
}

func (h *Handler) ethChainID(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := DecodeEmptyParams(params); err != nil {
		return nil, invalidParams(err)
	}
	return hexutil.Uint64(h.backend.ChainID()), nil
}

func (h *Handler) ethBlockNumber(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := DecodeEmptyParams(params); err != nil {
		return nil, invalidParams(err)
	}
	return hexutil.Uint64(h.backend.BlockNumber()), nil
}

func (h *Handler) ethGasPrice(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := DecodeEmptyParams(params); err != nil {
		return nil, invalidParams(err)
	}
	return (*hexutil.Big)(h.backend.GasPrice()), nil
}

func (h *Handler) ethAccounts(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := DecodeEmptyParams(params); err != nil {
		return nil, invalidParams(err)
	}
	accounts := h.backend.DevAccounts()
	out := make([]common.Address, 0, len(accounts))
	for _, dev := range accounts {
		out = append(out, dev.Address)
	}
	return out, nil
}

func (h *Handler) ethSyncing(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := DecodeEmptyParams(params); err != nil {
		return nil, invalidParams(err)
	}
	return false, nil
}

// accountQuery decodes the common (address, block?) parameter pair.
func (h *Handler) accountQuery(params json.RawMessage) (common.Address, uint64, error) {
	seq, err := DecodeBoundedSeq(params, 1, 2)
	if err != nil {
		return common.Address{}, 0, invalidParams(err)
	}
	addr, err := decodeAddress(seq[0])
	if err != nil {
		return common.Address{}, 0, invalidParams(err)
	}
	ref, err := DecodeBlockReference(seq[1])
	if err != nil {
		return common.Address{}, 0, invalidParams(err)
	}
	number, err := h.resolveBlockNumber(ref)
	if err != nil {
		return common.Address{}, 0, err
	}
	return addr, number, nil
}

func (h *Handler) ethGetBalance(ctx context.Context, params json.RawMessage) (interface{}, error) {
	addr, number, err := h.accountQuery(params)
	if err != nil {
		return nil, err
	}
	balance, err := h.backend.BalanceAt(addr, number)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(balance), nil
}

func (h *Handler) ethGetTransactionCount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	addr, number, err := h.accountQuery(params)
	if err != nil {
		return nil, err
	}
	nonce, err := h.backend.NonceAt(addr, number)
	if err != nil {
		return nil, err
	}
	return hexutil.Uint64(nonce), nil
}

func (h *Handler) ethGetCode(ctx context.Context, params json.RawMessage) (interface{}, error) {
	addr, number, err := h.accountQuery(params)
	if err != nil {
		return nil, err
	}
	code, err := h.backend.CodeAt(addr, number)
	if err != nil {
		return nil, err
	}
	return hexutil.Bytes(code), nil
}

func (h *Handler) ethGetStorageAt(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeBoundedSeq(params, 2, 3)
	if err != nil {
		return nil, invalidParams(err)
	}
	addr, err := decodeAddress(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	slot, err := DecodeU256(seq[1])
	if err != nil {
		return nil, invalidParams(err)
	}
	ref, err := DecodeBlockReference(seq[2])
	if err != nil {
		return nil, invalidParams(err)
	}
	number, err := h.resolveBlockNumber(ref)
	if err != nil {
		return nil, err
	}
	value, err := h.backend.StorageAt(addr, slot.Bytes32(), number)
	if err != nil {
		return nil, err
	}
	return hexutil.Bytes(value[:]), nil
}

func (h *Handler) blockResponse(block *types.Block, fullTx bool) *RPCBlock {
	return newRPCBlock(block, fullTx, func(txHash common.Hash) common.Address {
		sender, _ := h.backend.TransactionSender(txHash)
		return sender
	})
}

func (h *Handler) ethGetBlockByNumber(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeBoundedSeq(params, 1, 2)
	if err != nil {
		return nil, invalidParams(err)
	}
	ref, err := DecodeBlockReference(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	fullTx := false
	if !isNull(seq[1]) {
		if fullTx, err = decodeBool(seq[1]); err != nil {
			return nil, invalidParams(err)
		}
	}
	number, err := h.resolveBlockNumber(ref)
	if err != nil {
		// an unknown block is a null result, not an error
		return nil, nil
	}
	block, err := h.backend.BlockByNumber(number)
	if err != nil {
		return nil, nil
	}
	return h.blockResponse(block, fullTx), nil
}

func (h *Handler) ethGetBlockByHash(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeBoundedSeq(params, 1, 2)
	if err != nil {
		return nil, invalidParams(err)
	}
	hash, err := decodeHash(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	fullTx := false
	if !isNull(seq[1]) {
		if fullTx, err = decodeBool(seq[1]); err != nil {
			return nil, invalidParams(err)
		}
	}
	block, err := h.backend.BlockByHash(hash)
	if err != nil {
		return nil, nil
	}
	return h.blockResponse(block, fullTx), nil
}

func (h *Handler) ethGetTransactionByHash(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 1)
	if err != nil {
		return nil, invalidParams(err)
	}
	hash, err := decodeHash(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	tx, blockHash, blockNumber, index, err := h.backend.TransactionByHash(hash)
	if err != nil {
		return nil, nil
	}
	sender, _ := h.backend.TransactionSender(hash)
	return newRPCTransaction(tx, sender, blockHash, blockNumber, index), nil
}

func (h *Handler) ethGetTransactionReceipt(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 1)
	if err != nil {
		return nil, invalidParams(err)
	}
	hash, err := decodeHash(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	receipt, err := h.backend.ReceiptByTxHash(hash)
	if err != nil {
		return nil, nil
	}
	tx, _, _, _, err := h.backend.TransactionByHash(hash)
	if err != nil {
		return nil, nil
	}
	sender, _ := h.backend.TransactionSender(hash)
	return newRPCReceipt(receipt, tx, sender), nil
}

func (h *Handler) ethGetBlockReceipts(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 1)
	if err != nil {
		return nil, invalidParams(err)
	}
	ref, err := DecodeBlockReference(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	number, err := h.resolveBlockNumber(ref)
	if err != nil {
		return nil, err
	}
	block, err := h.backend.BlockByNumber(number)
	if err != nil {
		return nil, err
	}
	receipts, err := h.backend.BlockReceipts(block.Hash())
	if err != nil {
		return nil, err
	}
	out := make([]*RPCReceipt, 0, len(receipts))
	for _, receipt := range receipts {
		tx, _, _, _, err := h.backend.TransactionByHash(receipt.TxHash)
		if err != nil {
			continue
		}
		sender, _ := h.backend.TransactionSender(receipt.TxHash)
		out = append(out, newRPCReceipt(receipt, tx, sender))
	}
	return out, nil
}

func (h *Handler) ethSendTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 1)
	if err != nil {
		return nil, invalidParams(err)
	}
	args, err := decodeTransactionArgs(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	if args.From == nil {
		return nil, vchain.InvalidParamsError("missing 'from' address")
	}
	hash, err := h.backend.SendTransaction(args.callMsg())
	if err != nil {
		return nil, err
	}
	return hash, nil
}

func (h *Handler) ethSendRawTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 1)
	if err != nil {
		return nil, invalidParams(err)
	}
	data, err := decodeBytes(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	hash, err := h.backend.SendRawTransaction(data)
	if err != nil {
		return nil, err
	}
	return hash, nil
}

// callQuery decodes the (args, block?, overrides?) triple shared by
// eth_call, eth_estimateGas and debug_traceCall.
func (h *Handler) callQuery(params json.RawMessage) (*vchain.CallMsg, uint64, vchain.StateOverride, error) {
	seq, err := DecodeBoundedSeq(params, 1, 3)
	if err != nil {
		return nil, 0, nil, invalidParams(err)
	}
	args, err := decodeTransactionArgs(seq[0])
	if err != nil {
		return nil, 0, nil, invalidParams(err)
	}
	ref, err := DecodeBlockReference(seq[1])
	if err != nil {
		return nil, 0, nil, invalidParams(err)
	}
	overrides, err := decodeStateOverride(seq[2])
	if err != nil {
		return nil, 0, nil, invalidParams(err)
	}
	number, err := h.resolveBlockNumber(ref)
	if err != nil {
		return nil, 0, nil, err
	}
	return args.callMsg(), number, overrides, nil
}

func (h *Handler) ethCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	msg, number, overrides, err := h.callQuery(params)
	if err != nil {
		return nil, err
	}
	res, err := h.backend.Call(msg, number, overrides)
	if err != nil {
		return nil, err
	}
	if res.Err != nil {
		return nil, vchain.NewRevertError(res.Err, res.ReturnData)
	}
	return hexutil.Bytes(res.ReturnData), nil
}

func (h *Handler) ethEstimateGas(ctx context.Context, params json.RawMessage) (interface{}, error) {
	msg, _, overrides, err := h.callQuery(params)
	if err != nil {
		return nil, err
	}
	gas, err := h.backend.EstimateGas(msg, overrides)
	if err != nil {
		return nil, err
	}
	return hexutil.Uint64(gas), nil
}

type filterArgs struct {
	FromBlock json.RawMessage   `json:"fromBlock"`
	ToBlock   json.RawMessage   `json:"toBlock"`
	Address   json.RawMessage   `json:"address"`
	Topics    []json.RawMessage `json:"topics"`
	BlockHash *common.Hash      `json:"blockHash"`
}

func (h *Handler) ethGetLogs(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 1)
	if err != nil {
		return nil, invalidParams(err)
	}
	var args filterArgs
	if err := json.Unmarshal(seq[0], &args); err != nil {
		return nil, vchain.InvalidParamsError(fmt.Sprintf("invalid filter: %s", err))
	}
	var query vchain.FilterQuery
	if args.BlockHash != nil {
		block, err := h.backend.BlockByHash(*args.BlockHash)
		if err != nil {
			return nil, err
		}
		query.FromBlock = block.NumberU64()
		query.ToBlock = block.NumberU64()
	} else {
		fromRef, err := DecodeBlockReference(args.FromBlock)
		if err != nil {
			return nil, invalidParams(err)
		}
		toRef, err := DecodeBlockReference(args.ToBlock)
		if err != nil {
			return nil, invalidParams(err)
		}
		if fromRef.Tag == TagLatest && isNull(args.FromBlock) {
			fromRef = BlockReference{Tag: TagEarliest}
		}
		if query.FromBlock, err = h.resolveBlockNumber(fromRef); err != nil {
			return nil, err
		}
		if query.ToBlock, err = h.resolveBlockNumber(toRef); err != nil {
			return nil, err
		}
	}
	if !isNull(args.Address) {
		var single common.Address
		if err := json.Unmarshal(args.Address, &single); err == nil {
			query.Addresses = []common.Address{single}
		} else if err := json.Unmarshal(args.Address, &query.Addresses); err != nil {
			return nil, vchain.InvalidParamsError(fmt.Sprintf("invalid filter address: %s", err))
		}
	}
	for _, rawTopic := range args.Topics {
		if isNull(rawTopic) {
			query.Topics = append(query.Topics, nil)
			continue
		}
		var single common.Hash
		if err := json.Unmarshal(rawTopic, &single); err == nil {
			query.Topics = append(query.Topics, []common.Hash{single})
			continue
		}
		var alternatives []common.Hash
		if err := json.Unmarshal(rawTopic, &alternatives); err != nil {
			return nil, vchain.InvalidParamsError(fmt.Sprintf("invalid filter topic: %s", err))
		}
		query.Topics = append(query.Topics, alternatives)
	}
	logs := h.backend.Logs(query)
	if logs == nil {
		logs = []*types.Log{}
	}
	return logs, nil
}

func (h *Handler) debugTraceTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeBoundedSeq(params, 1, 2)
	if err != nil {
		return nil, invalidParams(err)
	}
	hash, err := decodeHash(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	trace, err := h.backend.TraceTransaction(hash)
	if err != nil {
		return nil, err
	}
	return trace, nil
}

func (h *Handler) debugTraceCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	msg, number, overrides, err := h.callQuery(params)
	if err != nil {
		return nil, err
	}
	trace, _, err := h.backend.TraceCall(msg, number, overrides)
	if err != nil {
		return nil, err
	}
	return trace, nil
}
