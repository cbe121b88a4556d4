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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// RPCBlock is the eth_getBlockBy* response shape.
type RPCBlock struct {
	Number           hexutil.Uint64   `json:"number"`
	Hash             common.Hash      `json:"hash"`
	ParentHash       common.Hash      `json:"parentHash"`
	Nonce            types.BlockNonce `json:"nonce"`
	Sha3Uncles       common.Hash      `json:"sha3Uncles"`
	LogsBloom        hexutil.Bytes    `json:"logsBloom"`
	TransactionsRoot common.Hash      `json:"transactionsRoot"`
	StateRoot        common.Hash      `json:"stateRoot"`
	ReceiptsRoot     common.Hash      `json:"receiptsRoot"`
	Miner            common.Address   `json:"miner"`
	Difficulty       *hexutil.Big     `json:"difficulty"`
	TotalDifficulty  *hexutil.Big     `json:"totalDifficulty"`
	ExtraData        hexutil.Bytes    `json:"extraData"`
	Size             hexutil.Uint64   `json:"size"`
	GasLimit         hexutil.Uint64   `json:"gasLimit"`
	GasUsed          hexutil.Uint64   `json:"gasUsed"`
	Timestamp        hexutil.Uint64   `json:"timestamp"`
	BaseFeePerGas    *hexutil.Big     `json:"baseFeePerGas,omitempty"`
	MixHash          common.Hash      `json:"mixHash"`
	Transactions     []interface{}    `json:"transactions"`
	Uncles           []common.Hash    `json:"uncles"`
}

// RPCTransaction is the eth_getTransactionByHash response shape.
type RPCTransaction struct {
	BlockHash            *common.Hash      `json:"blockHash"`
	BlockNumber          *hexutil.Uint64   `json:"blockNumber"`
	From                 common.Address    `json:"from"`
	Gas                  hexutil.Uint64    `json:"gas"`
	GasPrice             *hexutil.Big      `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big      `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big      `json:"maxPriorityFeePerGas,omitempty"`
	Hash                 common.Hash       `json:"hash"`
	Input                hexutil.Bytes     `json:"input"`
	Nonce                hexutil.Uint64    `json:"nonce"`
	To                   *common.Address   `json:"to"`
	TransactionIndex     *hexutil.Uint64   `json:"transactionIndex"`
	Value                *hexutil.Big      `json:"value"`
	Type                 hexutil.Uint64    `json:"type"`
	AccessList           *types.AccessList `json:"accessList,omitempty"`
	ChainID              *hexutil.Big      `json:"chainId,omitempty"`
	V                    *hexutil.Big      `json:"v"`
	R                    *hexutil.Big      `json:"r"`
	S                    *hexutil.Big      `json:"s"`
}

// RPCReceipt is the eth_getTransactionReceipt response shape.
type RPCReceipt struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	TransactionIndex  hexutil.Uint64  `json:"transactionIndex"`
	BlockHash         common.Hash     `json:"blockHash"`
	BlockNumber       hexutil.Uint64  `json:"blockNumber"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	ContractAddress   *common.Address `json:"contractAddress"`
	Logs              []*types.Log    `json:"logs"`
	LogsBloom         types.Bloom     `json:"logsBloom"`
	Status            hexutil.Uint64  `json:"status"`
	Type              hexutil.Uint64  `json:"type"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
}

func newRPCTransaction(tx *types.Transaction, from common.Address, blockHash common.Hash, blockNumber uint64, index int) *RPCTransaction {
	v, r, s := tx.RawSignatureValues()
	idx := hexutil.Uint64(index)
	num := hexutil.Uint64(blockNumber)
	out := &RPCTransaction{
		BlockHash:        &blockHash,
		BlockNumber:      &num,
		From:             from,
		Gas:              hexutil.Uint64(tx.Gas()),
		GasPrice:         (*hexutil.Big)(tx.GasPrice()),
		Hash:             tx.Hash(),
		Input:            tx.Data(),
		Nonce:            hexutil.Uint64(tx.Nonce()),
		To:               tx.To(),
		TransactionIndex: &idx,
		Value:            (*hexutil.Big)(tx.Value()),
		Type:             hexutil.Uint64(tx.Type()),
		V:                (*hexutil.Big)(v),
		R:                (*hexutil.Big)(r),
		S:                (*hexutil.Big)(s),
	}
	if tx.Type() != types.LegacyTxType {
		al := tx.AccessList()
		out.AccessList = &al
		out.ChainID = (*hexutil.Big)(tx.ChainId())
	}
	if tx.Type() == types.DynamicFeeTxType {
		out.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		out.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	}
	return out
}

func newRPCReceipt(receipt *types.Receipt, tx *types.Transaction, from common.Address) *RPCReceipt {
	out := &RPCReceipt{
		TransactionHash:   receipt.TxHash,
		TransactionIndex:  hexutil.Uint64(receipt.TransactionIndex),
		BlockHash:         receipt.BlockHash,
		BlockNumber:       hexutil.Uint64(receipt.BlockNumber.Uint64()),
		From:              from,
		To:                tx.To(),
		CumulativeGasUsed: hexutil.Uint64(receipt.CumulativeGasUsed),
		GasUsed:           hexutil.Uint64(receipt.GasUsed),
		Logs:              receipt.Logs,
		LogsBloom:         receipt.Bloom,
		Status:            hexutil.Uint64(receipt.Status),
		Type:              hexutil.Uint64(receipt.Type),
		EffectiveGasPrice: (*hexutil.Big)(tx.GasFeeCap()),
	}
	if out.Logs == nil {
		out.Logs = []*types.Log{}
	}
	if receipt.ContractAddress != (common.Address{}) {
		addr := receipt.ContractAddress
		out.ContractAddress = &addr
	}
	return out
}

func newRPCBlock(block *types.Block, fullTx bool, sender func(common.Hash) common.Address) *RPCBlock {
	out := &RPCBlock{
		Number:           hexutil.Uint64(block.NumberU64()),
		Hash:             block.Hash(),
		ParentHash:       block.ParentHash(),
		Nonce:            types.BlockNonce{},
		Sha3Uncles:       types.EmptyUncleHash,
		LogsBloom:        block.Bloom().Bytes(),
		TransactionsRoot: block.TxHash(),
		StateRoot:        block.Root(),
		ReceiptsRoot:     block.ReceiptHash(),
		Miner:            block.Coinbase(),
		Difficulty:       (*hexutil.Big)(block.Difficulty()),
		TotalDifficulty:  (*hexutil.Big)(new(big.Int)),
		ExtraData:        block.Extra(),
		Size:             hexutil.Uint64(block.Size()),
		GasLimit:         hexutil.Uint64(block.GasLimit()),
		GasUsed:          hexutil.Uint64(block.GasUsed()),
		Timestamp:        hexutil.Uint64(block.Time()),
		MixHash:          block.MixDigest(),
		Transactions:     []interface{}{},
		Uncles:           []common.Hash{},
	}
	if block.BaseFee() != nil {
		out.BaseFeePerGas = (*hexutil.Big)(block.BaseFee())
	}
	for i, tx := range block.Transactions() {
		if fullTx {
			out.Transactions = append(out.Transactions, newRPCTransaction(tx, sender(tx.Hash()), block.Hash(), block.NumberU64(), i))
		} else {
			out.Transactions = append(out.Transactions, tx.Hash())
		}
	}
	return out
}
