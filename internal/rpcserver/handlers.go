package rpcserver

import (
	"context"
	"encoding/hex"

	"github.com/klingnet-chain/controller/internal/chain"
	"github.com/klingnet-chain/controller/internal/services"
	"github.com/klingnet-chain/controller/internal/sysconfig"
	"github.com/klingnet-chain/controller/internal/types"
)

// ── Consumer-facing endpoints ───────────────────────────────────────────

func (s *Server) handleGetBlockNumber(req *Request) (interface{}, *Error) {
	var params PendingParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	return s.chain.GetBlockNumber(chain.BlockNumberFlag(params.Pending)), nil
}

func (s *Server) handleSendRawTransaction(ctx context.Context, req *Request) (interface{}, *Error) {
	var params DataParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	rawBytes, err := hex.DecodeString(params.Data)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "data must be hex"}
	}
	raw, err := types.DecodeRawTransaction(rawBytes)
	if err != nil {
		return nil, coreError(types.WrapCoreError(types.ErrDecode, "decode raw transaction", err))
	}
	txHash, err := s.chain.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, coreError(err)
	}
	return txHash.String(), nil
}

func (s *Server) handleGetBlockByHash(ctx context.Context, req *Request) (interface{}, *Error) {
	var params HashParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	hash, err := types.HexToHash(params.Hash)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "hash must be 32-byte hex"}
	}
	height, header, body, err := s.chain.GetBlockByHash(ctx, hash)
	if err != nil {
		return nil, coreError(err)
	}
	return newBlockResult(height, hash, header, body), nil
}

func (s *Server) handleGetBlockByNumber(ctx context.Context, req *Request) (interface{}, *Error) {
	var params HeightParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	header, body, err := s.chain.GetBlockByNumber(ctx, params.Height)
	if err != nil {
		return nil, coreError(err)
	}
	hash, err := s.chain.GetBlockHash(ctx, params.Height)
	if err != nil {
		return nil, coreError(err)
	}
	return newBlockResult(params.Height, hash, header, body), nil
}

func (s *Server) handleGetBlockHash(ctx context.Context, req *Request) (interface{}, *Error) {
	var params HeightParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	hash, err := s.chain.GetBlockHash(ctx, params.Height)
	if err != nil {
		return nil, coreError(err)
	}
	return hash.String(), nil
}

func (s *Server) handleGetTransaction(ctx context.Context, req *Request) (interface{}, *Error) {
	var params HashParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	hash, err := types.HexToHash(params.Hash)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "hash must be 32-byte hex"}
	}
	raw, err := s.chain.GetTransaction(ctx, hash)
	if err != nil {
		return nil, coreError(err)
	}
	kind := "normal"
	if raw.Kind == types.TxKindUtxo {
		kind = "utxo"
	}
	return &TransactionResult{
		Hash: hash.String(),
		Kind: kind,
		Data: hex.EncodeToString(raw.Encode()),
	}, nil
}

func (s *Server) handleGetTransactionBlockNumber(ctx context.Context, req *Request) (interface{}, *Error) {
	var params HashParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	hash, err := types.HexToHash(params.Hash)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "hash must be 32-byte hex"}
	}
	height, err := s.chain.GetTransactionBlockNumber(ctx, hash)
	if err != nil {
		return nil, coreError(err)
	}
	return height, nil
}

func (s *Server) handleGetTransactionIndex(ctx context.Context, req *Request) (interface{}, *Error) {
	var params HashParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	hash, err := types.HexToHash(params.Hash)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "hash must be 32-byte hex"}
	}
	index, err := s.chain.GetTransactionIndex(ctx, hash)
	if err != nil {
		return nil, coreError(err)
	}
	return index, nil
}

func (s *Server) handleGetSystemConfig(req *Request) (interface{}, *Error) {
	snap := s.chain.SystemConfig()
	heads := s.chain.SystemConfigHeads()

	validators := make([]string, 0, len(snap.Validators))
	for _, v := range snap.Validators {
		validators = append(validators, "0x"+hex.EncodeToString(v))
	}

	return &SystemConfigResult{
		Version:           snap.Version,
		ChainID:           snap.ChainID.String(),
		Admin:             snap.Admin.String(),
		BlockInterval:     snap.BlockInterval,
		Validators:        validators,
		EmergencyBrake:    snap.EmergencyBrake,
		VersionPreHash:    heads[sysconfig.LockIDVersion].String(),
		ChainIDPreHash:    heads[sysconfig.LockIDChainID].String(),
		AdminPreHash:      heads[sysconfig.LockIDAdmin].String(),
		BlockIntervalPre:  heads[sysconfig.LockIDBlockInterval].String(),
		ValidatorsPreHash: heads[sysconfig.LockIDValidators].String(),
		EmergencyBrakePre: heads[sysconfig.LockIDEmergencyBrake].String(),
	}, nil
}

func (s *Server) handleGetVersion(req *Request) (interface{}, *Error) {
	return s.chain.SystemConfig().Version, nil
}

func (s *Server) handleGetPeerCount(ctx context.Context, req *Request) (interface{}, *Error) {
	count, err := s.network.PeerCount(ctx)
	if err != nil {
		return nil, coreError(err)
	}
	return count, nil
}

// ── Consensus-facing endpoints ──────────────────────────────────────────

func (s *Server) handleGetProposal(ctx context.Context, req *Request) (interface{}, *Error) {
	height, data, err := s.chain.GetProposal(ctx)
	if err != nil {
		return nil, coreError(err)
	}
	return &ProposalResult{Height: height, Data: hex.EncodeToString(data)}, nil
}

func (s *Server) handleCheckProposal(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ProposalParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	data, err := hex.DecodeString(params.Data)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "data must be hex"}
	}
	ok, err := s.chain.CheckProposal(ctx, params.Height, data)
	if err != nil {
		return nil, coreError(err)
	}
	return ok, nil
}

func (s *Server) handleCommitBlock(ctx context.Context, req *Request) (interface{}, *Error) {
	var params CommitParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	data, err := hex.DecodeString(params.Data)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "data must be hex"}
	}
	proof, err := hex.DecodeString(params.Proof)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "proof must be hex"}
	}

	config, status, err := s.chain.CommitBlock(ctx, params.Height, data, proof)
	if err != nil {
		return nil, coreError(err)
	}

	validators := make([]string, 0, len(config.Validators))
	for _, v := range config.Validators {
		validators = append(validators, "0x"+hex.EncodeToString(v))
	}
	return &CommitResult{
		Height:        config.Height,
		BlockInterval: config.BlockInterval,
		Validators:    validators,
		StatusHeight:  status.Height,
		StatusHash:    status.Hash.String(),
	}, nil
}

// ── Network-facing endpoint ─────────────────────────────────────────────

func (s *Server) handleProcessNetworkMsg(ctx context.Context, req *Request) (interface{}, *Error) {
	var params NetworkMsgParam
	if rpcErr := parseParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if params.Module != "" && params.Module != "controller" {
		return nil, &Error{Code: CodeInvalidParams, Message: "wrong module"}
	}
	payload, err := hex.DecodeString(params.Payload)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "payload must be hex"}
	}
	if err := s.chain.ProcessNetworkMsg(ctx, services.NetworkMsg{
		Type:    services.NetworkMsgType(params.Type),
		Payload: payload,
	}); err != nil {
		return nil, coreError(err)
	}
	return true, nil
}

func newBlockResult(height uint64, hash types.Hash, header *types.Header, body *types.CompactBody) *BlockResult {
	txHashes := make([]string, 0, len(body.TxHashes))
	for _, h := range body.TxHashes {
		txHashes = append(txHashes, h.String())
	}
	return &BlockResult{
		Height:           height,
		Hash:             hash.String(),
		PrevHash:         header.PrevHash.String(),
		Timestamp:        header.Timestamp,
		TransactionsRoot: header.TransactionsRoot.String(),
		Proposer:         header.Proposer.String(),
		TxHashes:         txHashes,
	}
}
