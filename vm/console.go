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
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// ConsoleAddress is the hardhat console.log precompile address
// ("console.log" in ASCII, left-padded).
var ConsoleAddress = common.HexToAddress("0x000000000000000000636F6e736F6c652e6c6f67")

// ConsoleLog is one captured console.log invocation.
type ConsoleLog struct {
	Text string
	Raw  []byte
}

type consoleDecoder func(args []byte) (string, bool)

var consoleDecoders = map[[4]byte]consoleDecoder{}

func registerConsoleSig(sig string, dec consoleDecoder) {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(sig))[:4])
	consoleDecoders[sel] = dec
}

func init() {
	registerConsoleSig("log(string)", func(args []byte) (string, bool) {
		s, ok := abiString(args, 0)
		return s, ok
	})
	registerConsoleSig("log(uint256)", func(args []byte) (string, bool) {
		u, ok := abiUint(args, 0)
		return u, ok
	})
	registerConsoleSig("log(bool)", func(args []byte) (string, bool) {
		b, ok := abiBool(args, 0)
		return b, ok
	})
	registerConsoleSig("log(address)", func(args []byte) (string, bool) {
		a, ok := abiAddress(args, 0)
		return a, ok
	})
	registerConsoleSig("log(bytes32)", func(args []byte) (string, bool) {
		w, ok := abiWord(args, 0)
		if !ok {
			return "", false
		}
		return "0x" + hex.EncodeToString(w), true
	})
	registerConsoleSig("log(string,string)", func(args []byte) (string, bool) {
		a, ok1 := abiString(args, 0)
		b, ok2 := abiString(args, 1)
		return a + " " + b, ok1 && ok2
	})
	registerConsoleSig("log(string,uint256)", func(args []byte) (string, bool) {
		a, ok1 := abiString(args, 0)
		b, ok2 := abiUint(args, 1)
		return a + " " + b, ok1 && ok2
	})
	registerConsoleSig("log(string,address)", func(args []byte) (string, bool) {
		a, ok1 := abiString(args, 0)
		b, ok2 := abiAddress(args, 1)
		return a + " " + b, ok1 && ok2
	})
	registerConsoleSig("log(string,bool)", func(args []byte) (string, bool) {
		a, ok1 := abiString(args, 0)
		b, ok2 := abiBool(args, 1)
		return a + " " + b, ok1 && ok2
	})
	registerConsoleSig("log(uint256,uint256)", func(args []byte) (string, bool) {
		a, ok1 := abiUint(args, 0)
		b, ok2 := abiUint(args, 1)
		return a + " " + b, ok1 && ok2
	})
}

func abiWord(args []byte, index int) ([]byte, bool) {
	off := index * 32
	if len(args) < off+32 {
		return nil, false
	}
	return args[off : off+32], true
}

func abiUint(args []byte, index int) (string, bool) {
	w, ok := abiWord(args, index)
	if !ok {
		return "", false
	}
	return new(uint256.Int).SetBytes(w).Dec(), true
}

func abiBool(args []byte, index int) (string, bool) {
	w, ok := abiWord(args, index)
	if !ok {
		return "", false
	}
	if w[31] != 0 {
		return "true", true
	}
	return "false", true
}

func abiAddress(args []byte, index int) (string, bool) {
	w, ok := abiWord(args, index)
	if !ok {
		return "", false
	}
	return common.BytesToAddress(w[12:]).Hex(), true
}

func abiString(args []byte, index int) (string, bool) {
	w, ok := abiWord(args, index)
	if !ok {
		return "", false
	}
	off := new(uint256.Int).SetBytes(w)
	if !off.IsUint64() || off.Uint64()+32 > uint64(len(args)) {
		return "", false
	}
	o := off.Uint64()
	size := new(uint256.Int).SetBytes(args[o : o+32])
	if !size.IsUint64() || o+32+size.Uint64() > uint64(len(args)) {
		return "", false
	}
	return string(args[o+32 : o+32+size.Uint64()]), true
}

// ConsoleLogCollector captures console.log calls made during a single
// execution. Calls with an unrecognized signature are kept raw.
type ConsoleLogCollector struct {
	NoopInspector
	logs []ConsoleLog
}

func NewConsoleLogCollector() *ConsoleLogCollector {
	return &ConsoleLogCollector{}
}

func (c *ConsoleLogCollector) Call(call CallContext) {
	if call.To != ConsoleAddress || len(call.Input) < 4 {
		return
	}
	raw := append([]byte(nil), call.Input...)
	var sel [4]byte
	copy(sel[:], call.Input[:4])
	if dec, ok := consoleDecoders[sel]; ok {
		if text, ok := dec(call.Input[4:]); ok {
			c.logs = append(c.logs, ConsoleLog{Text: text, Raw: raw})
			return
		}
	}
	c.logs = append(c.logs, ConsoleLog{
		Text: fmt.Sprintf("console.log(0x%s)", hex.EncodeToString(call.Input)),
		Raw:  raw,
	})
}

// Logs returns the captured entries in call order.
func (c *ConsoleLogCollector) Logs() []ConsoleLog {
	return c.logs
}
