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

	"vchain/log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gvm "github.com/ethereum/go-ethereum/core/vm"
)

// OpContext describes one interpreter step.
type OpContext struct {
	PC    uint64
	Op    string
	Gas   uint64
	Cost  uint64
	Depth int
	Err   error
}

// CallContext describes a message call entering a frame.
type CallContext struct {
	From  common.Address
	To    common.Address
	Input []byte
	Gas   uint64
	Value *big.Int
}

// CreateContext describes a contract creation entering a frame.
type CreateContext struct {
	From  common.Address
	Input []byte
	Gas   uint64
	Value *big.Int
}

// Inspector observes EVM execution without altering its outcome. All hooks
// are best-effort: a misbehaving inspector never fails the execution.
type Inspector interface {
	Initialize(from common.Address, to *common.Address, input []byte, gas uint64, value *big.Int)
	Step(op OpContext)
	StepEnd(op OpContext)
	Log(l *types.Log)
	Call(call CallContext)
	CallEnd(output []byte, gasUsed uint64, err error)
	Create(create CreateContext)
	CreateEnd(output []byte, gasUsed uint64, err error)
}

// NoopInspector implements Inspector with empty hooks, meant for embedding.
type NoopInspector struct{}

func (NoopInspector) Initialize(common.Address, *common.Address, []byte, uint64, *big.Int) {}
func (NoopInspector) Step(OpContext)                                                      {}
func (NoopInspector) StepEnd(OpContext)                                                   {}
func (NoopInspector) Log(*types.Log)                                                      {}
func (NoopInspector) Call(CallContext)                                                    {}
func (NoopInspector) CallEnd([]byte, uint64, error)                                       {}
func (NoopInspector) Create(CreateContext)                                                {}
func (NoopInspector) CreateEnd([]byte, uint64, error)                                     {}

type frameKind uint8

const (
	frameCall frameKind = iota
	frameCreate
)

// InspectorStack fans every EVM event out to a fixed list of sub-inspectors
// in registration order. No inspector can short-circuit another; outcomes
// are not combined, the interpreter's own control flow stays authoritative.
//
// The stack implements go-ethereum's vm.EVMLogger, so it plugs straight
// into vm.Config.Tracer. A stack is used for exactly one top-level
// execution; its sub-inspector buffers are never reused.
type InspectorStack struct {
	inspectors []Inspector
	frames     []frameKind
	logger     log.Logger
}

// NewInspectorStack builds a stack from the given sub-inspectors. Nil
// entries (absent sub-inspectors) are dropped here once, instead of being
// nil-checked at every call site.
func NewInspectorStack(logger log.Logger, inspectors ...Inspector) *InspectorStack {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	s := &InspectorStack{logger: logger}
	for _, ins := range inspectors {
		if ins != nil {
			s.inspectors = append(s.inspectors, ins)
		}
	}
	return s
}

// each runs fn for every registered inspector, swallowing panics so that an
// inspector failure never becomes an EVM execution error.
func (s *InspectorStack) each(fn func(Inspector)) {
	for _, ins := range s.inspectors {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Warnf("inspector hook panicked: %v", r)
				}
			}()
			fn(ins)
		}()
	}
}

// EmitLog forwards a log emitted by the state layer to all sub-inspectors.
func (s *InspectorStack) EmitLog(l *types.Log) {
	s.each(func(ins Inspector) { ins.Log(l) })
}

// ---- vm.EVMLogger ----

func (s *InspectorStack) CaptureTxStart(gasLimit uint64) {}

func (s *InspectorStack) CaptureTxEnd(restGas uint64) {}

func (s *InspectorStack) CaptureStart(env *gvm.EVM, from, to common.Address, create bool, input []byte, gas uint64, value *big.Int) {
	if create {
		s.frames = append(s.frames, frameCreate)
		s.each(func(ins Inspector) {
			ins.Initialize(from, nil, input, gas, value)
			ins.Create(CreateContext{From: from, Input: input, Gas: gas, Value: value})
		})
		return
	}
	s.frames = append(s.frames, frameCall)
	dest := to
	s.each(func(ins Inspector) {
		ins.Initialize(from, &dest, input, gas, value)
		ins.Call(CallContext{From: from, To: to, Input: input, Gas: gas, Value: value})
	})
}

func (s *InspectorStack) CaptureEnd(output []byte, gasUsed uint64, err error) {
	s.closeFrame(output, gasUsed, err)
}

func (s *InspectorStack) CaptureEnter(typ gvm.OpCode, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	if typ == gvm.CREATE || typ == gvm.CREATE2 {
		s.frames = append(s.frames, frameCreate)
		s.each(func(ins Inspector) {
			ins.Create(CreateContext{From: from, Input: input, Gas: gas, Value: value})
		})
		return
	}
	s.frames = append(s.frames, frameCall)
	s.each(func(ins Inspector) {
		ins.Call(CallContext{From: from, To: to, Input: input, Gas: gas, Value: value})
	})
}

func (s *InspectorStack) CaptureExit(output []byte, gasUsed uint64, err error) {
	s.closeFrame(output, gasUsed, err)
}

func (s *InspectorStack) closeFrame(output []byte, gasUsed uint64, err error) {
	kind := frameCall
	if n := len(s.frames); n > 0 {
		kind = s.frames[n-1]
		s.frames = s.frames[:n-1]
	}
	if kind == frameCreate {
		s.each(func(ins Inspector) { ins.CreateEnd(output, gasUsed, err) })
		return
	}
	s.each(func(ins Inspector) { ins.CallEnd(output, gasUsed, err) })
}

func (s *InspectorStack) CaptureState(pc uint64, op gvm.OpCode, gas, cost uint64, scope *gvm.ScopeContext, rData []byte, depth int, err error) {
	ctx := OpContext{PC: pc, Op: op.String(), Gas: gas, Cost: cost, Depth: depth, Err: err}
	s.each(func(ins Inspector) { ins.Step(ctx) })
}

func (s *InspectorStack) CaptureFault(pc uint64, op gvm.OpCode, gas, cost uint64, scope *gvm.ScopeContext, depth int, err error) {
	ctx := OpContext{PC: pc, Op: op.String(), Gas: gas, Cost: cost, Depth: depth, Err: err}
	s.each(func(ins Inspector) { ins.StepEnd(ctx) })
}
