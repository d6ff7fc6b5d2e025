// Package p2p is the Network façade's embedded libp2p driver: GossipSub
// topics for the controller's four message types, with DHT and mDNS peer
// discovery.
package p2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/klingnet-chain/controller/internal/log"
	"github.com/klingnet-chain/controller/internal/services"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"
)

const (
	// dhtDiscoveryInterval is how often DHT FindPeers runs.
	dhtDiscoveryInterval = 30 * time.Second

	// seedConnectTimeout bounds each seed dial.
	seedConnectTimeout = 5 * time.Second

	// maxMessageSize bounds a gossiped message (a full block plus slack).
	maxMessageSize = 4 << 20
)

// Config holds the p2p driver's settings.
type Config struct {
	ListenAddr string
	Port       int
	Seeds      []string
	NetworkID  string // isolates DHT/mDNS discovery per network
	NoDiscover bool
}

// Node implements services.Network over libp2p.
type Node struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	host   host.Host
	pubsub *pubsub.PubSub
	dht    *dht.IpfsDHT

	mu     sync.RWMutex
	topics map[services.NetworkMsgType]*pubsub.Topic
	subs   []*pubsub.Subscription

	handler func(services.NetworkMsg)
}

// topicTypes is every gossip topic the controller speaks.
var topicTypes = []services.NetworkMsgType{
	services.NetworkMsgRawTx,
	services.NetworkMsgBlock,
	services.NetworkMsgProposal,
	services.NetworkMsgChainStatus,
}

// New creates a p2p node; Start brings it online.
func New(cfg Config) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
		logger: log.WithComponent("p2p"),
		topics: make(map[services.NetworkMsgType]*pubsub.Topic),
	}
}

// SetHandler registers the callback invoked for every incoming message.
// It may be called before or after Start; messages received while no
// handler is set are dropped.
func (n *Node) SetHandler(fn func(services.NetworkMsg)) {
	n.mu.Lock()
	n.handler = fn
	n.mu.Unlock()
}

func (n *Node) rendezvous() string {
	return "controller/" + n.config.NetworkID
}

// Start initializes the libp2p host, joins the gossip topics, and begins
// peer discovery.
func (n *Node) Start() error {
	addr := fmt.Sprintf("/ip4/%s/tcp/%d", n.config.ListenAddr, n.config.Port)
	h, err := libp2p.New(libp2p.ListenAddrStrings(addr))
	if err != nil {
		return fmt.Errorf("create libp2p host: %w", err)
	}
	n.host = h

	if !n.config.NoDiscover {
		if err := n.initDHT(); err != nil {
			h.Close()
			return fmt.Errorf("init dht: %w", err)
		}
	}

	ps, err := pubsub.NewGossipSub(n.ctx, h, pubsub.WithMaxMessageSize(maxMessageSize))
	if err != nil {
		n.closeDHT()
		h.Close()
		return fmt.Errorf("create pubsub: %w", err)
	}
	n.pubsub = ps

	for _, msgType := range topicTypes {
		topic, err := ps.Join(n.topicName(msgType))
		if err != nil {
			n.closeDHT()
			h.Close()
			return fmt.Errorf("join topic %s: %w", msgType, err)
		}
		sub, err := topic.Subscribe()
		if err != nil {
			n.closeDHT()
			h.Close()
			return fmt.Errorf("subscribe topic %s: %w", msgType, err)
		}
		n.topics[msgType] = topic
		n.subs = append(n.subs, sub)
		go n.readLoop(sub, msgType)
	}

	n.connectSeeds()

	if !n.config.NoDiscover {
		n.startMDNS()
		go n.runDHTDiscovery()
	}

	n.logger.Info().
		Str("peer_id", h.ID().String()).
		Str("listen", addr).
		Msg("p2p node started")
	return nil
}

// Stop shuts the node down.
func (n *Node) Stop() error {
	n.cancel()
	for _, sub := range n.subs {
		sub.Cancel()
	}
	for _, topic := range n.topics {
		topic.Close()
	}
	n.closeDHT()
	if n.host != nil {
		return n.host.Close()
	}
	return nil
}

func (n *Node) topicName(msgType services.NetworkMsgType) string {
	return n.rendezvous() + "/" + string(msgType)
}

func (n *Node) readLoop(sub *pubsub.Subscription, msgType services.NetworkMsgType) {
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}
		n.mu.RLock()
		handler := n.handler
		n.mu.RUnlock()
		if handler != nil {
			handler(services.NetworkMsg{Type: msgType, Payload: msg.Data})
		}
	}
}

func (n *Node) connectSeeds() {
	for _, seed := range n.config.Seeds {
		ma, err := multiaddr.NewMultiaddr(seed)
		if err != nil {
			n.logger.Warn().Err(err).Str("seed", seed).Msg("invalid seed multiaddr")
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			n.logger.Warn().Err(err).Str("seed", seed).Msg("seed multiaddr has no peer id")
			continue
		}
		ctx, cancel := context.WithTimeout(n.ctx, seedConnectTimeout)
		if err := n.host.Connect(ctx, *info); err != nil {
			n.logger.Warn().Err(err).Str("seed", seed).Msg("seed dial failed")
		}
		cancel()
	}
}

// Broadcast publishes a message on its topic (services.Network).
func (n *Node) Broadcast(ctx context.Context, msg services.NetworkMsg) error {
	n.mu.RLock()
	topic, ok := n.topics[msg.Type]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("p2p node not started or unknown message type %q", msg.Type)
	}
	return topic.Publish(ctx, msg.Payload)
}

// RegisterHandler satisfies services.Network. The embedded driver has no
// external registry: once Start has subscribed to the gossip topics, the
// registration an out-of-process network fabric would require is already
// complete.
func (n *Node) RegisterHandler(ctx context.Context, module, hostname string, port int) error {
	if n.host == nil {
		return fmt.Errorf("p2p node not started")
	}
	return nil
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount(ctx context.Context) (int, error) {
	if n.host == nil {
		return 0, fmt.Errorf("p2p node not started")
	}
	return len(n.host.Network().Peers()), nil
}

// Addrs returns this node's full multiaddrs, for use as another node's
// seed.
func (n *Node) Addrs() []string {
	if n.host == nil {
		return nil
	}
	var out []string
	for _, a := range n.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, n.host.ID()))
	}
	return out
}

func (n *Node) initDHT() error {
	kadDHT, err := dht.New(n.ctx, n.host, dht.Mode(dht.ModeAuto))
	if err != nil {
		return err
	}
	if err := kadDHT.Bootstrap(n.ctx); err != nil {
		return err
	}
	n.dht = kadDHT
	return nil
}

func (n *Node) closeDHT() {
	if n.dht != nil {
		n.dht.Close()
		n.dht = nil
	}
}

func (n *Node) runDHTDiscovery() {
	routingDiscovery := drouting.NewRoutingDiscovery(n.dht)
	dutil.Advertise(n.ctx, routingDiscovery, n.rendezvous())

	ticker := time.NewTicker(dhtDiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			peers, err := routingDiscovery.FindPeers(n.ctx, n.rendezvous())
			if err != nil {
				continue
			}
			for info := range peers {
				if info.ID == n.host.ID() || len(info.Addrs) == 0 {
					continue
				}
				if n.host.Network().Connectedness(info.ID) == network.Connected {
					continue
				}
				ctx, cancel := context.WithTimeout(n.ctx, seedConnectTimeout)
				_ = n.host.Connect(ctx, info)
				cancel()
			}
		}
	}
}

func (n *Node) startMDNS() {
	service := mdns.NewMdnsService(n.host, n.rendezvous(), &discoveryNotifee{node: n})
	if err := service.Start(); err != nil {
		n.logger.Warn().Err(err).Msg("mdns start failed")
	}
}

// discoveryNotifee handles mDNS peer discovery notifications.
type discoveryNotifee struct {
	node *Node
}

// HandlePeerFound is called when a peer is discovered via mDNS.
func (d *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == d.node.host.ID() {
		return
	}
	ctx, cancel := context.WithTimeout(d.node.ctx, seedConnectTimeout)
	defer cancel()
	_ = d.node.host.Connect(ctx, pi)
}
