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
	"errors"

	"vchain"
	"vchain/log"
)

type methodFn func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Handler decodes JSON-RPC calls into typed backend operations. It is the
// single dispatch point behind the transport; an unknown method is the only
// thing that yields -32601, every decode failure on a known method is
// -32602.
type Handler struct {
	backend *vchain.Backend
	logger  log.Logger
	methods map[string]methodFn
}

func NewHandler(backend *vchain.Backend, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	h := &Handler{
		backend: backend,
		logger:  logger,
		methods: make(map[string]methodFn),
	}
	h.registerEth()
	h.registerNet()
	h.registerCheats()
	return h
}

func (h *Handler) register(name string, fn methodFn) {
	h.methods[name] = fn
}

// Methods lists every registered method name, for introspection and tests.
func (h *Handler) Methods() []string {
	names := make([]string, 0, len(h.methods))
	for name := range h.methods {
		names = append(names, name)
	}
	return names
}

// OnCall implements vchain.Handler.
func (h *Handler) OnCall(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	fn, ok := h.methods[method]
	if !ok {
		h.logger.Debugf("method not found: %s", method)
		return nil, vchain.MethodNotFoundError()
	}
	result, err := fn(ctx, params)
	if err != nil {
		return nil, h.mapError(err)
	}
	return result, nil
}

// mapError folds backend failures into the closed error taxonomy.
func (h *Handler) mapError(err error) error {
	var rpcErr *vchain.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var overrideErr *vchain.StateOverrideError
	if errors.As(err, &overrideErr) {
		return vchain.InvalidParamsError(overrideErr.Error())
	}
	switch {
	case errors.Is(err, vchain.ErrBlockNotFound),
		errors.Is(err, vchain.ErrTxNotFound),
		errors.Is(err, vchain.ErrStateNotFound),
		errors.Is(err, vchain.ErrSnapshotNotFound),
		errors.Is(err, vchain.ErrUnknownSender):
		return vchain.NewRPCErrorCause(vchain.ErrorCodeFromInt(-32000), err)
	}
	return vchain.InternalErrorWith(err.Error())
}

func invalidParams(err error) error {
	return vchain.InvalidParamsError(err.Error())
}

// resolveBlockNumber pins a block reference to a concrete height. Pending,
// safe and finalized all collapse onto the head: every mined block is final
// here.
func (h *Handler) resolveBlockNumber(ref BlockReference) (uint64, error) {
	head := h.backend.BlockNumber()
	if ref.Hash != nil {
		block, err := h.backend.BlockByHash(*ref.Hash)
		if err != nil {
			return 0, err
		}
		return block.NumberU64(), nil
	}
	if ref.Number != nil {
		if *ref.Number > head {
			return 0, vchain.ErrBlockNotFound
		}
		return *ref.Number, nil
	}
	if ref.Tag == TagEarliest {
		return 0, nil
	}
	return head, nil
}
