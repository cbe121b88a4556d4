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

	ivm "vchain/vm"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
)

// DevChainConfig enables every supported fork from genesis, up to and
// including Shanghai. Cancun stays off; blob transactions are out of scope.
func DevChainConfig(chainID uint64) *params.ChainConfig {
	zero := uint64(0)
	return &params.ChainConfig{
		ChainID:                       new(big.Int).SetUint64(chainID),
		HomesteadBlock:                big.NewInt(0),
		EIP150Block:                   big.NewInt(0),
		EIP155Block:                   big.NewInt(0),
		EIP158Block:                   big.NewInt(0),
		ByzantiumBlock:                big.NewInt(0),
		ConstantinopleBlock:           big.NewInt(0),
		PetersburgBlock:               big.NewInt(0),
		IstanbulBlock:                 big.NewInt(0),
		MuirGlacierBlock:              big.NewInt(0),
		BerlinBlock:                   big.NewInt(0),
		LondonBlock:                   big.NewInt(0),
		ArrowGlacierBlock:             big.NewInt(0),
		GrayGlacierBlock:              big.NewInt(0),
		MergeNetsplitBlock:            big.NewInt(0),
		ShanghaiTime:                  &zero,
		TerminalTotalDifficulty:       big.NewInt(0),
		TerminalTotalDifficultyPassed: true,
	}
}

// blockEnv is the header context an execution runs under.
type blockEnv struct {
	Number    *big.Int
	Coinbase  common.Address
	Timestamp uint64
	GasLimit  uint64
	BaseFee   *big.Int
	Random    common.Hash
}

func (env *blockEnv) blockContext(getHash vm.GetHashFunc) vm.BlockContext {
	random := env.Random
	return vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     getHash,
		Coinbase:    env.Coinbase,
		BlockNumber: new(big.Int).Set(env.Number),
		Time:        env.Timestamp,
		Difficulty:  new(big.Int),
		GasLimit:    env.GasLimit,
		BaseFee:     new(big.Int).Set(env.BaseFee),
		Random:      &random,
	}
}

type execResult struct {
	UsedGas    uint64
	Err        error
	ReturnData []byte
	Logs       []*types.Log
}

// applyMessage runs one message on the given state under env, fanning
// execution events out to the inspector stack. The state is mutated in
// place; the caller decides whether those mutations are kept.
func applyMessage(config *params.ChainConfig, state *WorldState, env *blockEnv, msg *core.Message, inspectors *ivm.InspectorStack, getHash vm.GetHashFunc) (*execResult, error) {
	noBaseFee := (msg.GasPrice == nil || msg.GasPrice.Sign() == 0) &&
		(msg.GasFeeCap == nil || msg.GasFeeCap.Sign() == 0)
	vmConfig := vm.Config{NoBaseFee: noBaseFee}
	if inspectors != nil {
		state.SetLogSink(inspectors.EmitLog)
		defer state.SetLogSink(nil)
		vmConfig.Tracer = inspectors
	}
	txCtx := core.NewEVMTxContext(msg)
	evm := vm.NewEVM(env.blockContext(getHash), txCtx, state, config, vmConfig)
	gp := new(core.GasPool).AddGas(env.GasLimit)
	result, err := core.ApplyMessage(evm, msg, gp)
	if err != nil {
		return nil, err
	}
	state.Finalise()
	return &execResult{
		UsedGas:    result.UsedGas,
		Err:        result.Err,
		ReturnData: result.ReturnData,
		Logs:       state.Logs(),
	}, nil
}
