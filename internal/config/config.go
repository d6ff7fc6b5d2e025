// Package config loads the controller's runtime configuration: the
// controller-config.toml node settings, the init-sys-config.toml genesis
// system-config values, and the genesis.toml block seed.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/naoina/toml"
)

// Config holds node-specific runtime configuration. Collaborator ports
// address out-of-process services;
// when Local is set the embedded drivers are used instead and the ports
// are ignored.
type Config struct {
	NetworkPort      int    `toml:"network_port"`
	ConsensusPort    int    `toml:"consensus_port"`
	StoragePort      int    `toml:"storage_port"`
	KmsPort          int    `toml:"kms_port"`
	ExecutorPort     int    `toml:"executor_port"`
	BlockDelayNumber uint32 `toml:"block_delay_number"`

	DataDir string `toml:"data_dir"`
	// Local runs every collaborator in-process: badger-backed storage,
	// corecrypto KMS, the no-op executor, and the libp2p network driver.
	Local bool `toml:"local"`

	RPC RPCConfig `toml:"rpc"`
	P2P P2PConfig `toml:"p2p"`
	Log LogConfig `toml:"log"`
}

// RPCConfig holds the consumer-facing JSON-RPC server settings.
type RPCConfig struct {
	Addr string `toml:"addr"`
	Port int    `toml:"port"`
}

// P2PConfig holds the embedded libp2p network driver settings, used when
// Local is set.
type P2PConfig struct {
	ListenAddr string   `toml:"listen"`
	Port       int      `toml:"port"`
	Seeds      []string `toml:"seeds"`
	NetworkID  string   `toml:"network_id"`
	NoDiscover bool     `toml:"no_discover"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
	File  string `toml:"file"`
}

// Default returns the baseline configuration before file and flag
// overrides.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		NetworkPort:      50000,
		ConsensusPort:    50001,
		StoragePort:      50002,
		KmsPort:          50003,
		ExecutorPort:     50004,
		BlockDelayNumber: 6,
		DataDir:          filepath.Join(home, ".controller"),
		Local:            true,
		RPC:              RPCConfig{Addr: "127.0.0.1", Port: 50005},
		P2P:              P2PConfig{ListenAddr: "0.0.0.0", Port: 50010, NetworkID: "controller-dev-1"},
		Log:              LogConfig{Level: "info"},
	}
}

// LoadFile applies a controller-config.toml on top of cfg. A missing file
// is not an error; defaults stay in place.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ChainDataDir is where the embedded storage driver keeps its database.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, "chaindata")
}

// Load builds the effective configuration: defaults, then the config
// file, then command-line flags.
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, nil, err
	}

	cfg := Default()
	configPath := flags.Config
	if configPath == "" {
		configPath = "controller-config.toml"
	}
	if err := LoadFile(cfg, configPath); err != nil {
		return nil, nil, err
	}
	flags.Apply(cfg)
	return cfg, flags, nil
}
