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
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingInspector appends every hook invocation to a shared journal.
type recordingInspector struct {
	NoopInspector
	name    string
	journal *[]string
}

func (r *recordingInspector) record(event string) {
	*r.journal = append(*r.journal, fmt.Sprintf("%s:%s", r.name, event))
}

func (r *recordingInspector) Initialize(common.Address, *common.Address, []byte, uint64, *big.Int) {
	r.record("initialize")
}
func (r *recordingInspector) Step(OpContext)                  { r.record("step") }
func (r *recordingInspector) Log(*types.Log)                  { r.record("log") }
func (r *recordingInspector) Call(CallContext)                { r.record("call") }
func (r *recordingInspector) CallEnd([]byte, uint64, error)   { r.record("callEnd") }
func (r *recordingInspector) Create(CreateContext)            { r.record("create") }
func (r *recordingInspector) CreateEnd([]byte, uint64, error) { r.record("createEnd") }

type panickingInspector struct {
	NoopInspector
}

func (panickingInspector) Call(CallContext) { panic("misbehaving inspector") }

func TestInspectorStackFanOutOrder(t *testing.T) {
	var journal []string
	first := &recordingInspector{name: "a", journal: &journal}
	second := &recordingInspector{name: "b", journal: &journal}
	stack := NewInspectorStack(nil, first, second)

	stack.CaptureStart(nil, common.Address{}, common.HexToAddress("0x01"), false, nil, 21000, big.NewInt(1))
	stack.CaptureEnd(nil, 21000, nil)

	assert.Equal(t, []string{
		"a:initialize", "a:call",
		"b:initialize", "b:call",
		"a:callEnd", "b:callEnd",
	}, journal)
}

func TestInspectorStackDropsNilEntries(t *testing.T) {
	var journal []string
	rec := &recordingInspector{name: "a", journal: &journal}
	stack := NewInspectorStack(nil, nil, rec, nil)

	stack.CaptureStart(nil, common.Address{}, common.Address{}, false, nil, 0, nil)
	assert.Equal(t, []string{"a:initialize", "a:call"}, journal)
}

func TestInspectorStackSwallowsPanics(t *testing.T) {
	var journal []string
	rec := &recordingInspector{name: "a", journal: &journal}
	stack := NewInspectorStack(nil, panickingInspector{}, rec)

	require.NotPanics(t, func() {
		stack.CaptureStart(nil, common.Address{}, common.Address{}, false, nil, 0, nil)
	})
	// the panicking inspector must not starve the next one
	assert.Contains(t, journal, "a:call")
}

func TestInspectorStackRoutesCreateFrames(t *testing.T) {
	var journal []string
	rec := &recordingInspector{name: "a", journal: &journal}
	stack := NewInspectorStack(nil, rec)

	stack.CaptureStart(nil, common.Address{}, common.Address{}, true, []byte{0x60}, 100, nil)
	stack.CaptureEnter(gvm.CALL, common.Address{}, common.HexToAddress("0x02"), nil, 50, nil)
	stack.CaptureExit(nil, 10, nil)
	stack.CaptureEnd(nil, 90, nil)

	assert.Equal(t, []string{
		"a:initialize", "a:create",
		"a:call",
		"a:callEnd",
		"a:createEnd",
	}, journal)
}

func TestInspectorStackEmitLog(t *testing.T) {
	var journal []string
	rec := &recordingInspector{name: "a", journal: &journal}
	stack := NewInspectorStack(nil, rec)
	stack.EmitLog(&types.Log{})
	assert.Equal(t, []string{"a:log"}, journal)
}

func TestCallTracerBuildsTree(t *testing.T) {
	tracer := NewCallTracer()
	stack := NewInspectorStack(nil, tracer)

	stack.CaptureStart(nil, common.HexToAddress("0x0a"), common.HexToAddress("0x0b"), false, []byte{0x01}, 100, big.NewInt(5))
	stack.CaptureEnter(gvm.STATICCALL, common.HexToAddress("0x0b"), common.HexToAddress("0x0c"), nil, 40, nil)
	stack.CaptureExit([]byte{0xff}, 15, nil)
	stack.CaptureEnd([]byte{0xaa}, 60, nil)

	root := tracer.Result()
	require.NotNil(t, root)
	assert.Equal(t, "CALL", root.Kind)
	assert.Equal(t, common.HexToAddress("0x0a"), root.From)
	assert.Equal(t, uint64(60), uint64(root.GasUsed))
	require.Len(t, root.Children, 1)
	child := root.Children[0]
	assert.Equal(t, common.HexToAddress("0x0c"), *child.To)
	assert.Equal(t, []byte{0xff}, []byte(child.Output))
}

func consoleCalldata(sig string, args []byte) []byte {
	sel := crypto.Keccak256([]byte(sig))[:4]
	return append(sel, args...)
}

func abiEncodeString(s string) []byte {
	out := make([]byte, 64)
	out[31] = 0x20
	out[63] = byte(len(s))
	out = append(out, []byte(s)...)
	pad := (32 - len(s)%32) % 32
	return append(out, make([]byte, pad)...)
}

func TestConsoleCollectorDecodesKnownSignatures(t *testing.T) {
	collector := NewConsoleLogCollector()

	collector.Call(CallContext{To: ConsoleAddress, Input: consoleCalldata("log(string)", abiEncodeString("hello"))})

	num := make([]byte, 32)
	num[31] = 42
	collector.Call(CallContext{To: ConsoleAddress, Input: consoleCalldata("log(uint256)", num)})

	boolean := make([]byte, 32)
	boolean[31] = 1
	collector.Call(CallContext{To: ConsoleAddress, Input: consoleCalldata("log(bool)", boolean)})

	logs := collector.Logs()
	require.Len(t, logs, 3)
	assert.Equal(t, "hello", logs[0].Text)
	assert.Equal(t, "42", logs[1].Text)
	assert.Equal(t, "true", logs[2].Text)
}

func TestConsoleCollectorIgnoresOtherTargets(t *testing.T) {
	collector := NewConsoleLogCollector()
	collector.Call(CallContext{To: common.HexToAddress("0x01"), Input: consoleCalldata("log(string)", abiEncodeString("x"))})
	assert.Empty(t, collector.Logs())
}

func TestConsoleCollectorKeepsUnknownSelectorRaw(t *testing.T) {
	collector := NewConsoleLogCollector()
	input := []byte{0xde, 0xad, 0xbe, 0xef, 0x01}
	collector.Call(CallContext{To: ConsoleAddress, Input: input})
	logs := collector.Logs()
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Text, "deadbeef")
	assert.Equal(t, input, logs[0].Raw)
}
