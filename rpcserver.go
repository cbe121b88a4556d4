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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"vchain/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const jsonrpcVersion = "2.0"

// Handler answers decoded JSON-RPC calls. The api package provides the
// canonical implementation, which decodes params into typed requests and
// distinguishes unknown methods from malformed params.
type Handler interface {
	OnCall(ctx context.Context, method string, params json.RawMessage) (interface{}, error)
}

type RPCConfig struct {
	ListenAddr string
	// CORSOrigins enables CORS for the listed origins; "*" allows any.
	// Empty disables the headers entirely.
	CORSOrigins []string
	Logger      log.Logger
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result"`
	Error   *RPCError       `json:"error"`
}

// MarshalJSON emits exactly one of result or error. A nil result still
// serializes as "result":null, callers distinguish null from absent.
func (r rpcResponse) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      json.RawMessage `json:"id"`
			Error   *RPCError       `json:"error"`
		}{r.JSONRPC, r.ID, r.Error})
	}
	return json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  interface{}     `json:"result"`
	}{r.JSONRPC, r.ID, r.Result})
}

// RPCServer serves JSON-RPC 2.0 over HTTP POST and WebSocket on "/".
type RPCServer struct {
	logger    log.Logger
	config    *RPCConfig
	ginEngine *gin.Engine
	upgrader  websocket.Upgrader
	handler   Handler
}

func ginlogger(log log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(c.Errors) > 0 {
			log.Errorln(c.Errors.ByType(gin.ErrorTypePrivate).String())
		}
	}
}

func ginCors(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && len(origins) > 0 {
			_, ok := allowed[origin]
			if allowAll {
				c.Header("Access-Control-Allow-Origin", "*")
			} else if ok {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			if allowAll || ok {
				c.Header("Access-Control-Allow-Methods", "GET, POST")
				c.Header("Access-Control-Allow-Headers", "Content-Type")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func NewRPCServer(config *RPCConfig) *RPCServer {
	server := &RPCServer{
		logger: config.Logger,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if server.logger == nil {
		server.logger = log.DefaultLogger()
	}
	gin.DefaultWriter = server.logger.Writer()
	gin.SetMode("release")
	server.ginEngine = gin.New()
	server.ginEngine.Use(ginlogger(server.logger))
	server.ginEngine.Use(gin.Recovery())
	server.ginEngine.Use(ginCors(config.CORSOrigins))
	server.ginEngine.Any("/", server.handleRoot)
	return server
}

// SetHandler installs the dispatch target. Must be called before Start.
func (server *RPCServer) SetHandler(h Handler) {
	server.handler = h
}

func errorResponse(id json.RawMessage, rpcErr *RPCError) rpcResponse {
	return rpcResponse{JSONRPC: jsonrpcVersion, ID: id, Error: rpcErr}
}

// serveSingle handles one request object and always produces exactly one
// response, success or error, correlated by id.
func (server *RPCServer) serveSingle(ctx context.Context, raw json.RawMessage) rpcResponse {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		// parseable JSON of the wrong shape is an invalid request, only
		// malformed JSON is a parse error
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return errorResponse(nil, InvalidRequestError())
		}
		return errorResponse(nil, ParseRPCError())
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		return errorResponse(req.ID, InvalidRequestError())
	}
	if server.handler == nil {
		return errorResponse(req.ID, InternalError())
	}
	result, err := server.handler.OnCall(ctx, req.Method, req.Params)
	if err != nil {
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			// internal failures never leak more than a message string
			rpcErr = InternalErrorWith(err.Error())
		}
		return errorResponse(req.ID, rpcErr)
	}
	return rpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Result: result}
}

// serveData handles a request body, which is either a single request object
// or a batch array of them.
func (server *RPCServer) serveData(ctx context.Context, data []byte) []byte {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			out, _ := json.Marshal(errorResponse(nil, ParseRPCError()))
			return out
		}
		if len(batch) == 0 {
			out, _ := json.Marshal(errorResponse(nil, InvalidRequestError()))
			return out
		}
		responses := make([]rpcResponse, 0, len(batch))
		for _, raw := range batch {
			responses = append(responses, server.serveSingle(ctx, raw))
		}
		out, _ := json.Marshal(responses)
		return out
	}
	out, _ := json.Marshal(server.serveSingle(ctx, trimmed))
	return out
}

func isWebsocketRequest(c *gin.Context) bool {
	connection := c.GetHeader("Connection")
	upgrade := c.GetHeader("Upgrade")
	return connection == "Upgrade" && upgrade == "websocket"
}

func (server *RPCServer) handleWebsocket(c *gin.Context) error {
	conn, err := server.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	for {
		t, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if t != websocket.TextMessage {
			continue
		}
		out := server.serveData(c.Request.Context(), msg)
		if err = conn.WriteMessage(t, out); err != nil {
			continue
		}
	}
	return nil
}

func httperr(c *gin.Context, status int, err error) {
	c.String(status, "%s", err)
	c.Abort()
}

func (server *RPCServer) handleRoot(c *gin.Context) {
	if isWebsocketRequest(c) {
		if err := server.handleWebsocket(c); err != nil {
			server.logger.Warnf("ws connect err: %s", err)
		}
		c.Abort()
		return
	}
	if c.Request.Method != http.MethodPost {
		httperr(c, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if c.ContentType() != "application/json" {
		httperr(c, http.StatusUnsupportedMediaType, errors.New("not acceptable"))
		return
	}
	if c.Request.Body == nil {
		httperr(c, http.StatusBadRequest, errors.New("body not be empty"))
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		httperr(c, http.StatusInternalServerError, fmt.Errorf("read body err: %s", err))
		return
	}
	c.Status(http.StatusOK)
	c.Header("Content-Type", "application/json; charset=utf-8")
	_, _ = c.Writer.Write(server.serveData(c.Request.Context(), body))
	c.Abort()
}

// ServeHTTP exposes the underlying engine, mainly for tests.
func (server *RPCServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	server.ginEngine.ServeHTTP(w, r)
}

// Start starts the RPC server and blocks.
func (server *RPCServer) Start() error {
	ln, err := net.Listen("tcp", server.config.ListenAddr)
	if err != nil {
		return err
	}
	server.logger.Infof("RPC Service listen on: %s", ln.Addr())
	return server.ginEngine.RunListener(ln)
}
