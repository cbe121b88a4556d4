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

package vchain

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is a minimal JSON-RPC 2.0 client used to talk to an upstream
// endpoint, mainly the fork origin.
type Client struct {
	hostUrl string
	resty   *resty.Client
	nextID  uint64
}

type jsonRPCReq struct {
	JsonRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type jsonRPCResp struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      uint64          `json:"id"`
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		hostUrl: url,
		resty:   resty.New().SetTimeout(timeout),
	}
}

// CallMethod executes a JSON-RPC call and unmarshals the result into out.
// A non-nil error object in the response is returned as the *RPCError it
// decodes to.
func (cli *Client) CallMethod(methodname string, params interface{}, out interface{}) error {
	req := &jsonRPCReq{
		JsonRPC: jsonrpcVersion,
		ID:      atomic.AddUint64(&cli.nextID, 1),
		Method:  methodname,
		Params:  params,
	}
	// The result must be a pointer so that response json can unmarshal into it.
	var resp *jsonRPCResp = nil
	_, err := cli.resty.R().
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&resp).
		Post(cli.hostUrl)
	if err != nil {
		return err
	}
	if resp == nil {
		return fmt.Errorf("resp null")
	}
	if e := resp.Error; e != nil {
		return e
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}
