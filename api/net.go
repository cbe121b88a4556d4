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
	"strconv"

	"vchain"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func (h *Handler) registerNet() {
	h.register("web3_clientVersion", h.web3ClientVersion)
	h.register("web3_sha3", h.web3Sha3)
	h.register("net_version", h.netVersion)
	h.register("net_listening", h.netListening)
	h.register("net_peerCount", h.netPeerCount)
}

func (h *Handler) web3ClientVersion(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := DecodeEmptyParams(params); err != nil {
		return nil, invalidParams(err)
	}
	return vchain.ClientVersion(), nil
}

func (h *Handler) web3Sha3(ctx context.Context, params json.RawMessage) (interface{}, error) {
	seq, err := DecodeExactLenSeq(params, 1)
	if err != nil {
		return nil, invalidParams(err)
	}
	data, err := decodeBytes(seq[0])
	if err != nil {
		return nil, invalidParams(err)
	}
	return hexutil.Bytes(crypto.Keccak256(data)), nil
}

func (h *Handler) netVersion(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := DecodeEmptyParams(params); err != nil {
		return nil, invalidParams(err)
	}
	return strconv.FormatUint(h.backend.ChainID(), 10), nil
}

func (h *Handler) netListening(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := DecodeEmptyParams(params); err != nil {
		return nil, invalidParams(err)
	}
	return true, nil
}

func (h *Handler) netPeerCount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if err := DecodeEmptyParams(params); err != nil {
		return nil, invalidParams(err)
	}
	return hexutil.Uint64(0), nil
}
