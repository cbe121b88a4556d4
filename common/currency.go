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

package common

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

var weiPerEther = decimal.New(1, etherDecimals)

// WeiToEther renders a wei amount as a decimal ether string, trailing
// zeros trimmed.
func WeiToEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	// shifting the exponent is exact, dividing would round at the
	// library's default precision
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}

// EtherToWei parses a decimal ether string into wei. Amounts with more
// than 18 fractional digits are rejected rather than truncated.
func EtherToWei(ether string) (*big.Int, error) {
	d, err := decimal.NewFromString(ether)
	if err != nil {
		return nil, err
	}
	scaled := d.Mul(weiPerEther)
	if scaled.Exponent() < 0 && !scaled.Equal(scaled.Truncate(0)) {
		return nil, errors.New("amount below 1 wei precision")
	}
	return scaled.BigInt(), nil
}
