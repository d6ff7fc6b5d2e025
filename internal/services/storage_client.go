package services

import (
	"context"
	"encoding/hex"
)

// StorageClient is the out-of-process Storage façade: an HTTP/JSON-RPC
// client against a standalone storage service process.
type StorageClient struct {
	rpc *rpcClient
}

// NewStorageClient builds a Storage façade talking to an external storage
// service at endpoint (e.g. "http://127.0.0.1:port").
func NewStorageClient(endpoint string) *StorageClient {
	return &StorageClient{rpc: newRPCClient(endpoint)}
}

type storeParams struct {
	Region uint8  `json:"region"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

type loadParams struct {
	Region uint8  `json:"region"`
	Key    string `json:"key"`
}

func (c *StorageClient) Store(ctx context.Context, region uint8, key, value []byte) (bool, error) {
	var ok bool
	err := c.rpc.call(ctx, "storage_store", storeParams{
		Region: region,
		Key:    hex.EncodeToString(key),
		Value:  hex.EncodeToString(value),
	}, &ok)
	return ok, err
}

func (c *StorageClient) Load(ctx context.Context, region uint8, key []byte) ([]byte, error) {
	var hexVal string
	if err := c.rpc.call(ctx, "storage_load", loadParams{Region: region, Key: hex.EncodeToString(key)}, &hexVal); err != nil {
		return nil, err
	}
	return hex.DecodeString(hexVal)
}

func (c *StorageClient) LoadMaybeEmpty(ctx context.Context, region uint8, key []byte) ([]byte, error) {
	var hexVal string
	if err := c.rpc.call(ctx, "storage_loadMaybeEmpty", loadParams{Region: region, Key: hex.EncodeToString(key)}, &hexVal); err != nil {
		return nil, err
	}
	if hexVal == "" {
		return nil, nil
	}
	return hex.DecodeString(hexVal)
}
