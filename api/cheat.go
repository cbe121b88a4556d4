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

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// registerCheats wires the dev-node control surface. Every anvil_ method
// has a hardhat_ alias with identical semantics so both tool families work
// unchanged.
func (h *Handler) registerCheats() {
	alias := func(names []string, fn methodFn) {
		for _, name := range names {
			h.register(name, fn)
		}
	}
	h.register("evm_snapshot", h.evmSnapshot)
	h.register("evm_revert", h.evmRevert)
	h.register("evm_mine", h.evmMine)
	h.register("evm_setNextBlockTimestamp", h.setNextBlockTimestamp)
	alias([]string{"anvil_setBalance", "hardhat_setBalance"}, h.setBalance)
	alias([]string{"anvil_setNonce", "hardhat_setNonce"}, h.setNonce)
	alias([]string{"anvil_setCode", "hardhat_setCode"}, h.setCode)
	alias([]string{"anvil_setStorageAt", "hardhat_setStorageAt"}, h.setStorageAt)
	alias([]string{"anvil_impersonateAccount", "hardhat_impersonateAccount"}, h.impersonateAccount)
	alias([]string{"anvil_stopImpersonatingAccount", "hardhat_stopImpersonatingAccount"}, h.stopImpersonatingAccount)
	h.register("anvil_autoImpersonateAccount", h.autoImpersonateAccount)
	alias([]string{"anvil_mine", "hardhat_mine"}, h.mine)
	h.register("anvil_setNextBlockTimestamp", h.setNextBlockTimestamp)
	h.register("anvil_snapshot", h.evmSnapshot)
	h.register("anvil_revert", h.evmRevert)
	h.register("anvil_dumpState", h.dumpState)
	h.register("anvil_loadState", h.loadState)
}

func (h *Handler) evmSnapshot(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := DecodeEmptyParams(params); err != nil {
		return nil, invalidParams(err)
	}
	return hexutil.Uint64(h.backend.Snapshot()), nil
}

func (h *Handler) evmRevert(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 1)
	if err != nil {
		return nil, invalidParams(err)
	}
	id, err := DecodeU64(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := h.backend.RevertToSnapshot(id); err != nil {
		return false, nil
	}
	return true, nil
}

func (h *Handler) evmMine(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeBoundedSeq(params, 0, 1)
	if err != nil {
		return nil, invalidParams(err)
	}
	if !isNull(seq[0]) {
		ts, err := DecodeU64(seq[0])
		if err != nil {
			return nil, invalidParams(err)
		}
		if ts != 0 {
			if err := h.backend.SetNextBlockTimestamp(ts); err != nil {
				return nil, invalidParams(err)
			}
		}
	}
	h.backend.Mine(1, 0)
	return "0x0", nil
}

func (h *Handler) mine(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeBoundedSeq(params, 0, 2)
	if err != nil {
		return nil, invalidParams(err)
	}
	count := uint64(1)
	if !isNull(seq[0]) {
		if count, err = DecodeU64(seq[0]); err != nil {
			return nil, invalidParams(err)
		}
	}
	var interval uint64
	if !isNull(seq[1]) {
		if interval, err = DecodeU64(seq[1]); err != nil {
			return nil, invalidParams(err)
		}
	}
	h.backend.Mine(count, interval)
	return nil, nil
}

func (h *Handler) setNextBlockTimestamp(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 1)
	if err != nil {
		return nil, invalidParams(err)
	}
	ts, err := DecodeU64(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := h.backend.SetNextBlockTimestamp(ts); err != nil {
		return nil, invalidParams(err)
	}
	return nil, nil
}

func (h *Handler) setBalance(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 2)
	if err != nil {
		return nil, invalidParams(err)
	}
	addr, err := decodeAddress(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	balance, err := DecodeU256(seq[1])
	if err != nil {
		return nil, invalidParams(err)
	}
	h.backend.SetBalance(addr, balance.ToBig())
	return nil, nil
}

func (h *Handler) setNonce(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 2)
	if err != nil {
		return nil, invalidParams(err)
	}
	addr, err := decodeAddress(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	nonce, err := DecodeU64(seq[1])
	if err != nil {
		return nil, invalidParams(err)
	}
	h.backend.SetNonce(addr, nonce)
	return nil, nil
}

func (h *Handler) setCode(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 2)
	if err != nil {
		return nil, invalidParams(err)
	}
	addr, err := decodeAddress(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	code, err := decodeBytes(seq[1])
	if err != nil {
		return nil, invalidParams(err)
	}
	h.backend.SetCode(addr, code)
	return nil, nil
}

func (h *Handler) setStorageAt(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 3)
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
	value, err := DecodeU256(seq[2])
	if err != nil {
		return nil, invalidParams(err)
	}
	h.backend.SetStorageAt(addr, slot.Bytes32(), value.Bytes32())
	return true, nil
}

func (h *Handler) impersonateAccount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 1)
	if err != nil {
		return nil, invalidParams(err)
	}
	addr, err := decodeAddress(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	h.backend.ImpersonateAccount(addr)
	return nil, nil
}

func (h *Handler) stopImpersonatingAccount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 1)
	if err != nil {
		return nil, invalidParams(err)
	}
	addr, err := decodeAddress(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	h.backend.StopImpersonatingAccount(addr)
	return nil, nil
}

func (h *Handler) autoImpersonateAccount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 1)
	if err != nil {
		return nil, invalidParams(err)
	}
	enabled, err := decodeBool(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	h.backend.SetAutoImpersonate(enabled)
	return nil, nil
}

func (h *Handler) dumpState(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := DecodeEmptyParams(params); err != nil {
		return nil, invalidParams(err)
	}
	data, err := h.backend.DumpState()
	if err != nil {
		return nil, err
	}
	return hexutil.Bytes(data), nil
}

func (h *Handler) loadState(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 1)
	if err != nil {
		return nil, invalidParams(err)
	}
	data, err := decodeBytes(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	if err := h.backend.LoadState(data); err != nil {
		return nil, invalidParams(err)
	}
	return true, nil
}
