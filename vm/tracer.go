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

package vm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CallTraceNode is one frame of a call trace. Children are nested frames
// in execution order.
type CallTraceNode struct {
	Kind     string           `json:"type"`
	From     common.Address   `json:"from"`
	To       *common.Address  `json:"to,omitempty"`
	Value    *hexutil.Big     `json:"value,omitempty"`
	Gas      hexutil.Uint64   `json:"gas"`
	GasUsed  hexutil.Uint64   `json:"gasUsed"`
	Input    hexutil.Bytes    `json:"input"`
	Output   hexutil.Bytes    `json:"output,omitempty"`
	Error    string           `json:"error,omitempty"`
	Children []*CallTraceNode `json:"calls,omitempty"`
}

// CallTracer records the call tree of a single execution. The resulting
// trace is owned by whoever ran the execution and is never shared across
// concurrent runs.
type CallTracer struct {
	NoopInspector
	root  *CallTraceNode
	stack []*CallTraceNode
}

func NewCallTracer() *CallTracer {
	return &CallTracer{}
}

func (t *CallTracer) push(node *CallTraceNode) {
	if t.root == nil {
		t.root = node
	} else if n := len(t.stack); n > 0 {
		parent := t.stack[n-1]
		parent.Children = append(parent.Children, node)
	}
	t.stack = append(t.stack, node)
}

func (t *CallTracer) pop(output []byte, gasUsed uint64, err error) {
	n := len(t.stack)
	if n == 0 {
		return
	}
	node := t.stack[n-1]
	t.stack = t.stack[:n-1]
	node.GasUsed = hexutil.Uint64(gasUsed)
	node.Output = append([]byte(nil), output...)
	if err != nil {
		node.Error = err.Error()
	}
}

func (t *CallTracer) Call(call CallContext) {
	to := call.To
	node := &CallTraceNode{
		Kind:  "CALL",
		From:  call.From,
		To:    &to,
		Gas:   hexutil.Uint64(call.Gas),
		Input: append([]byte(nil), call.Input...),
	}
	if call.Value != nil && call.Value.Sign() > 0 {
		node.Value = (*hexutil.Big)(new(big.Int).Set(call.Value))
	}
	t.push(node)
}

func (t *CallTracer) CallEnd(output []byte, gasUsed uint64, err error) {
	t.pop(output, gasUsed, err)
}

func (t *CallTracer) Create(create CreateContext) {
	node := &CallTraceNode{
		Kind:  "CREATE",
		From:  create.From,
		Gas:   hexutil.Uint64(create.Gas),
		Input: append([]byte(nil), create.Input...),
	}
	if create.Value != nil && create.Value.Sign() > 0 {
		node.Value = (*hexutil.Big)(new(big.Int).Set(create.Value))
	}
	t.push(node)
}

func (t *CallTracer) CreateEnd(output []byte, gasUsed uint64, err error) {
	t.pop(output, gasUsed, err)
}

// Result returns the root of the recorded call tree, or nil when nothing
// was executed.
func (t *CallTracer) Result() *CallTraceNode {
	return t.root
}
