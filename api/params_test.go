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
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeU256AcceptedShapes(t *testing.T) {
	// hex string, decimal string and bare number all mean the same value
	for _, raw := range []string{`"0xff"`, `"0XFF"`, `"255"`, `255`} {
		v, err := DecodeU256(json.RawMessage(raw))
		require.NoError(t, err, "raw: %s", raw)
		assert.Equal(t, uint64(255), v.Uint64(), "raw: %s", raw)
	}
}

func TestDecodeU256Rejections(t *testing.T) {
	for _, raw := range []string{
		``, `null`, `""`, `"0x"`, `"0xzz"`, `"12abc"`, `"-1"`, `true`, `[1]`, `{}`,
	} {
		_, err := DecodeU256(json.RawMessage(raw))
		assert.Error(t, err, "raw: %s", raw)
	}
}

func TestDecodeU64Overflow(t *testing.T) {
	v, err := DecodeU64(json.RawMessage(`"0xffffffffffffffff"`))
	require.NoError(t, err)
	assert.Equal(t, uint64(0xffffffffffffffff), v)

	_, err = DecodeU64(json.RawMessage(`"0x10000000000000000"`))
	assert.Error(t, err)
}

func TestDecodeSeqSingletonWrapping(t *testing.T) {
	// a bare value counts as a one-element sequence
	seq, err := DecodeSeq(json.RawMessage(`"0x01"`))
	require.NoError(t, err)
	require.Len(t, seq, 1)
	assert.Equal(t, `"0x01"`, string(seq[0]))

	seq, err = DecodeSeq(json.RawMessage(`["0x01","0x02"]`))
	require.NoError(t, err)
	assert.Len(t, seq, 2)

	seq, err = DecodeSeq(nil)
	require.NoError(t, err)
	assert.Empty(t, seq)

	seq, err = DecodeSeq(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Empty(t, seq)
}

func TestDecodeExactLenSeq(t *testing.T) {
	_, err := DecodeExactLenSeq(json.RawMessage(`["a"]`), 1)
	assert.NoError(t, err)
	_, err = DecodeExactLenSeq(json.RawMessage(`["a","b"]`), 1)
	assert.Error(t, err)
	_, err = DecodeExactLenSeq(nil, 1)
	assert.Error(t, err)
}

func TestDecodeBoundedSeqPadsTail(t *testing.T) {
	seq, err := DecodeBoundedSeq(json.RawMessage(`["a"]`), 1, 3)
	require.NoError(t, err)
	require.Len(t, seq, 3)
	assert.True(t, isNull(seq[1]))
	assert.True(t, isNull(seq[2]))

	_, err = DecodeBoundedSeq(json.RawMessage(`[]`), 1, 3)
	assert.Error(t, err)
	_, err = DecodeBoundedSeq(json.RawMessage(`["a","b","c","d"]`), 1, 3)
	assert.Error(t, err)
}

func TestDecodeEmptyParams(t *testing.T) {
	assert.NoError(t, DecodeEmptyParams(nil))
	assert.NoError(t, DecodeEmptyParams(json.RawMessage(`null`)))
	assert.NoError(t, DecodeEmptyParams(json.RawMessage(`[]`)))
	assert.Error(t, DecodeEmptyParams(json.RawMessage(`["x"]`)))
}

func TestDecodeBlockReferenceTags(t *testing.T) {
	for _, tag := range []string{"latest", "earliest", "pending", "safe", "finalized"} {
		ref, err := DecodeBlockReference(json.RawMessage(`"` + tag + `"`))
		require.NoError(t, err)
		assert.Equal(t, tag, ref.Tag)
	}
	_, err := DecodeBlockReference(json.RawMessage(`"newest"`))
	assert.Error(t, err)
}

func TestDecodeBlockReferenceDefaultsToLatest(t *testing.T) {
	ref, err := DecodeBlockReference(nil)
	require.NoError(t, err)
	assert.Equal(t, TagLatest, ref.Tag)

	ref, err = DecodeBlockReference(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Equal(t, TagLatest, ref.Tag)
}

func TestDecodeBlockReferenceNumbers(t *testing.T) {
	for _, raw := range []string{`"0x10"`, `"16"`, `16`} {
		ref, err := DecodeBlockReference(json.RawMessage(raw))
		require.NoError(t, err, "raw: %s", raw)
		require.NotNil(t, ref.Number)
		assert.Equal(t, uint64(16), *ref.Number)
	}
}

func TestDecodeBlockReferenceEIP1898(t *testing.T) {
	ref, err := DecodeBlockReference(json.RawMessage(`{"blockNumber":"0x2"}`))
	require.NoError(t, err)
	require.NotNil(t, ref.Number)
	assert.Equal(t, uint64(2), *ref.Number)

	hash := common.HexToHash("0xabcd")
	ref, err = DecodeBlockReference(json.RawMessage(`{"blockHash":"` + hash.Hex() + `","requireCanonical":true}`))
	require.NoError(t, err)
	require.NotNil(t, ref.Hash)
	assert.Equal(t, hash, *ref.Hash)
	assert.True(t, ref.RequireCanonical)

	// exactly one of blockNumber and blockHash
	_, err = DecodeBlockReference(json.RawMessage(`{"blockNumber":"0x2","blockHash":"` + hash.Hex() + `"}`))
	assert.Error(t, err)
	_, err = DecodeBlockReference(json.RawMessage(`{"requireCanonical":true}`))
	assert.Error(t, err)
	_, err = DecodeBlockReference(json.RawMessage(`{"blockNumber":"0x2","bogus":1}`))
	assert.Error(t, err)
}
