package services

import (
	"context"
	"encoding/hex"
)

// NetworkClient is the out-of-process Network façade: an HTTP/JSON-RPC
// client against a standalone network-fabric service, as an alternative
// to running the embedded libp2p driver in internal/p2p.
type NetworkClient struct {
	rpc      *rpcClient
	hostname string
	port     int
}

// NewNetworkClient builds a Network façade talking to an external network
// service at endpoint, registering itself as hostname:port.
func NewNetworkClient(endpoint, hostname string, port int) *NetworkClient {
	return &NetworkClient{rpc: newRPCClient(endpoint), hostname: hostname, port: port}
}

func (c *NetworkClient) Broadcast(ctx context.Context, msg NetworkMsg) error {
	return c.rpc.call(ctx, "network_broadcast", map[string]string{
		"type":    string(msg.Type),
		"payload": hex.EncodeToString(msg.Payload),
	}, nil)
}

func (c *NetworkClient) RegisterHandler(ctx context.Context, module, hostname string, port int) error {
	return c.rpc.call(ctx, "network_registerHandler", map[string]interface{}{
		"module":   module,
		"hostname": hostname,
		"port":     port,
	}, nil)
}

func (c *NetworkClient) PeerCount(ctx context.Context) (int, error) {
	var count int
	err := c.rpc.call(ctx, "network_peerCount", nil, &count)
	return count, err
}
