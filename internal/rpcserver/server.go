// Package rpcserver implements the controller's JSON-RPC 2.0 HTTP
// surface: the consumer-facing API, the consensus-facing proposal
// operations, and the network-facing message handler.
package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/klingnet-chain/controller/internal/chain"
	"github.com/klingnet-chain/controller/internal/log"
	"github.com/klingnet-chain/controller/internal/services"
	"github.com/klingnet-chain/controller/internal/types"
	"github.com/rs/zerolog"
)

// maxBodySize is the maximum allowed request body size (4 MB: a full
// block proposal plus envelope).
const maxBodySize = 4 << 20

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr    string
	chain   *chain.Chain
	network services.Network
	server  *http.Server
	ln      net.Listener
	logger  zerolog.Logger
}

// New creates an RPC server bound to addr, serving the given chain.
func New(addr string, ch *chain.Chain, network services.Network) *Server {
	s := &Server{
		addr:    addr,
		chain:   ch,
		network: network,
		logger:  log.WithComponent("rpc"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins listening and serving in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("rpc server error")
		}
	}()
	s.logger.Info().Str("addr", s.addr).Msg("rpc server started")
	return nil
}

// Addr returns the bound listen address (useful when port 0 was given).
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeResponse(w, &Response{JSONRPC: "2.0", Error: &Error{Code: CodeParse, Message: "read body failed"}})
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, &Response{JSONRPC: "2.0", Error: &Error{Code: CodeParse, Message: "parse request failed"}})
		return
	}

	resp := &Response{JSONRPC: "2.0", ID: req.ID}
	result, rpcErr := s.dispatch(r.Context(), &req)
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *Error) {
	switch req.Method {
	case "controller_getBlockNumber":
		return s.handleGetBlockNumber(req)
	case "controller_sendRawTransaction":
		return s.handleSendRawTransaction(ctx, req)
	case "controller_getBlockByHash":
		return s.handleGetBlockByHash(ctx, req)
	case "controller_getBlockByNumber":
		return s.handleGetBlockByNumber(ctx, req)
	case "controller_getBlockHash":
		return s.handleGetBlockHash(ctx, req)
	case "controller_getTransaction":
		return s.handleGetTransaction(ctx, req)
	case "controller_getTransactionBlockNumber":
		return s.handleGetTransactionBlockNumber(ctx, req)
	case "controller_getTransactionIndex":
		return s.handleGetTransactionIndex(ctx, req)
	case "controller_getSystemConfig":
		return s.handleGetSystemConfig(req)
	case "controller_getVersion":
		return s.handleGetVersion(req)
	case "controller_getPeerCount":
		return s.handleGetPeerCount(ctx, req)
	case "consensus_getProposal":
		return s.handleGetProposal(ctx, req)
	case "consensus_checkProposal":
		return s.handleCheckProposal(ctx, req)
	case "consensus_commitBlock":
		return s.handleCommitBlock(ctx, req)
	case "network_processMsg":
		return s.handleProcessNetworkMsg(ctx, req)
	default:
		return nil, &Error{Code: CodeMethodUnknown, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
}

// coreError maps a core error to the RPC Internal status, carrying the
// error kind as the message.
func coreError(err error) *Error {
	var ce *types.CoreError
	if errors.As(err, &ce) {
		return &Error{Code: CodeInternal, Message: string(ce.Kind)}
	}
	return &Error{Code: CodeInternal, Message: err.Error()}
}

func parseParams(req *Request, out interface{}) *Error {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, out); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}
