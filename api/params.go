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
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// The param codec is deliberately lenient on input shape, tooling in the
// wild sends quantities as hex strings, decimal strings and bare numbers
// interchangeably, and some clients send a single value where an array is
// expected. Values that match none of the accepted shapes fail closed.

var jsonNull = []byte("null")

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

// DecodeU256 decodes a 256-bit quantity from a hex string, a decimal
// string or a bare JSON number.
func DecodeU256(raw json.RawMessage) (*uint256.Int, error) {
	if isNull(raw) {
		return nil, fmt.Errorf("missing quantity")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseU256String(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return parseU256String(n.String())
	}
	return nil, fmt.Errorf("invalid quantity: %s", truncateRaw(raw))
}

func parseU256String(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("invalid quantity: empty string")
	}
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err := uint256.FromHex("0x" + s[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid hex quantity %q: %s", s, err)
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal quantity %q: %s", s, err)
	}
	return v, nil
}

// DecodeU64 is DecodeU256 restricted to 64 bits.
func DecodeU64(raw json.RawMessage) (uint64, error) {
	v, err := DecodeU256(raw)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("quantity %s overflows uint64", v)
	}
	return v.Uint64(), nil
}

func truncateRaw(raw json.RawMessage) string {
	const max = 64
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}

// DecodeSeq splits a params payload into its positional elements. A bare
// value that is not an array counts as a one-element sequence; null and
// absent params count as empty.
func DecodeSeq(params json.RawMessage) ([]json.RawMessage, error) {
	if isNull(params) {
		return nil, nil
	}
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var seq []json.RawMessage
		if err := json.Unmarshal(trimmed, &seq); err != nil {
			return nil, fmt.Errorf("invalid params: %s", err)
		}
		return seq, nil
	}
	return []json.RawMessage{trimmed}, nil
}

// DecodeExactLenSeq requires exactly want positional params.
func DecodeExactLenSeq(params json.RawMessage, want int) ([]json.RawMessage, error) {
	seq, err := DecodeSeq(params)
	if err != nil {
		return nil, err
	}
	if len(seq) != want {
		return nil, fmt.Errorf("expected %d params, got %d", want, len(seq))
	}
	return seq, nil
}

// DecodeBoundedSeq requires between min and max positional params and pads
// the tail with nulls up to max, so optional trailing params decode
// uniformly.
func DecodeBoundedSeq(params json.RawMessage, min, max int) ([]json.RawMessage, error) {
	seq, err := DecodeSeq(params)
	if err != nil {
		return nil, err
	}
	if len(seq) < min || len(seq) > max {
		return nil, fmt.Errorf("expected %d to %d params, got %d", min, max, len(seq))
	}
	for len(seq) < max {
		seq = append(seq, nil)
	}
	return seq, nil
}

// DecodeEmptyParams accepts absent, null and [] params and nothing else.
func DecodeEmptyParams(params json.RawMessage) error {
	seq, err := DecodeSeq(params)
	if err != nil {
		return err
	}
	if len(seq) != 0 {
		return fmt.Errorf("expected no params, got %d", len(seq))
	}
	return nil
}

// BlockReference names a block by tag, number or hash (EIP-1898).
type BlockReference struct {
	Tag              string
	Number           *uint64
	Hash             *common.Hash
	RequireCanonical bool
}

const (
	TagLatest    = "latest"
	TagEarliest  = "earliest"
	TagPending   = "pending"
	TagSafe      = "safe"
	TagFinalized = "finalized"
)

func validTag(tag string) bool {
	switch tag {
	case TagLatest, TagEarliest, TagPending, TagSafe, TagFinalized:
		return true
	}
	return false
}

// LatestBlock is the reference an absent block param defaults to.
func LatestBlock() BlockReference {
	return BlockReference{Tag: TagLatest}
}

type eip1898Ref struct {
	BlockNumber      *json.RawMessage `json:"blockNumber"`
	BlockHash        *common.Hash     `json:"blockHash"`
	RequireCanonical bool             `json:"requireCanonical"`
}

// DecodeBlockReference decodes a block param: a tag string, a quantity, or
// an EIP-1898 object carrying either blockNumber or blockHash. Absent and
// null default to latest.
func DecodeBlockReference(raw json.RawMessage) (BlockReference, error) {
	if isNull(raw) {
		return LatestBlock(), nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var ref eip1898Ref
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&ref); err != nil {
			return BlockReference{}, fmt.Errorf("invalid block reference: %s", err)
		}
		if (ref.BlockNumber != nil) == (ref.BlockHash != nil) {
			return BlockReference{}, fmt.Errorf("block reference needs exactly one of blockNumber and blockHash")
		}
		if ref.BlockHash != nil {
			hash := *ref.BlockHash
			return BlockReference{Hash: &hash, RequireCanonical: ref.RequireCanonical}, nil
		}
		num, err := DecodeU64(*ref.BlockNumber)
		if err != nil {
			return BlockReference{}, err
		}
		return BlockReference{Number: &num}, nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil && validTag(s) {
		return BlockReference{Tag: s}, nil
	}
	num, err := DecodeU64(trimmed)
	if err != nil {
		return BlockReference{}, fmt.Errorf("invalid block reference: %s", truncateRaw(raw))
	}
	return BlockReference{Number: &num}, nil
}
