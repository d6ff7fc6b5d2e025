package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klingnet-chain/controller/internal/sysconfig"
	"github.com/klingnet-chain/controller/internal/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFile_OverridesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "controller-config.toml", `
block_delay_number = 9
data_dir = "/tmp/ctl-test"

[rpc]
port = 12345

[log]
level = "debug"
`)
	cfg := Default()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.BlockDelayNumber != 9 {
		t.Errorf("BlockDelayNumber = %d, want 9", cfg.BlockDelayNumber)
	}
	if cfg.RPC.Port != 12345 {
		t.Errorf("RPC.Port = %d, want 12345", cfg.RPC.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	// Untouched fields keep their defaults.
	if cfg.NetworkPort != 50000 {
		t.Errorf("NetworkPort = %d, want default 50000", cfg.NetworkPort)
	}
}

func TestLoadFile_MissingIsNotAnError(t *testing.T) {
	cfg := Default()
	if err := LoadFile(cfg, filepath.Join(t.TempDir(), "absent.toml")); err != nil {
		t.Errorf("LoadFile() for absent file: %v", err)
	}
}

func TestFlags_Apply(t *testing.T) {
	flags, err := ParseFlags([]string{"--rpc-port", "9999", "--log-level", "warn", "--local=false"})
	if err != nil {
		t.Fatalf("ParseFlags() error: %v", err)
	}
	cfg := Default()
	flags.Apply(cfg)
	if cfg.RPC.Port != 9999 {
		t.Errorf("RPC.Port = %d, want 9999", cfg.RPC.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Local {
		t.Error("explicit --local=false must override the default")
	}
}

func TestSystemConfigFile_Apply(t *testing.T) {
	path := writeFile(t, t.TempDir(), "init-sys-config.toml", `
version = 0
chain_id = "0101010101010101010101010101010101010101010101010101010101010101"
admin = "0x00000000000000000000000000000000000000aa"
block_interval = 3
validators = ["0x00000000000000000000000000000000000000bb"]
emergency_brake = false
`)
	f, err := LoadSystemConfigFile(path)
	if err != nil {
		t.Fatalf("LoadSystemConfigFile() error: %v", err)
	}
	sc := sysconfig.New()
	if err := f.Apply(sc); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	snap := sc.Get()
	if snap.BlockInterval != 3 {
		t.Errorf("BlockInterval = %d, want 3", snap.BlockInterval)
	}
	if snap.ChainID.String() != "0101010101010101010101010101010101010101010101010101010101010101" {
		t.Errorf("ChainID = %s", snap.ChainID)
	}
	if len(snap.Validators) != 1 {
		t.Fatalf("validator count = %d, want 1", len(snap.Validators))
	}
	if snap.EmergencyBrake {
		t.Error("EmergencyBrake should be off")
	}
	// Genesis install leaves every slot head at zero so the first live
	// update chains from 0x00..00.
	if !sc.HeadTxHash(sysconfig.LockIDValidators).IsZero() {
		t.Error("genesis install must leave slot heads at the zero hash")
	}
}

func TestGenesisFile_ToBlock(t *testing.T) {
	path := writeFile(t, t.TempDir(), "genesis.toml", `
timestamp = 1640966400
prevhash = "0000000000000000000000000000000000000000000000000000000000000000"
`)
	g, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis() error: %v", err)
	}
	block, err := g.ToBlock(types.Hash{1})
	if err != nil {
		t.Fatalf("ToBlock() error: %v", err)
	}
	if block.Header.Height != 0 || block.Header.Timestamp != 1640966400 {
		t.Errorf("genesis header = %+v", block.Header)
	}
	if !block.Header.PrevHash.IsZero() {
		t.Error("genesis prevhash must be zero")
	}
}
