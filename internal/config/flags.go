package config

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds parsed command-line flags. Set* bits record which flags the
// user passed explicitly, so a false/zero value can still override the
// config file.
type Flags struct {
	Help    bool
	Version bool

	Config  string
	DataDir string

	RPCAddr string
	RPCPort int

	P2PPort int
	Seeds   string

	LogLevel string
	LogFile  string
	LogJSON  bool

	Local bool

	SetLocal   bool
	SetLogJSON bool
}

// ParseFlags parses args (without the program name).
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("controllerd", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "show usage")
	fs.BoolVar(&f.Version, "version", false, "print version and exit")
	fs.StringVar(&f.Config, "config", "", "path to controller-config.toml")
	fs.StringVar(&f.DataDir, "datadir", "", "data directory")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "RPC listen port")
	fs.IntVar(&f.P2PPort, "p2p-port", 0, "p2p listen port")
	fs.StringVar(&f.Seeds, "seeds", "", "comma-separated p2p seed multiaddrs")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	fs.StringVar(&f.LogFile, "log-file", "", "log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "log JSON to console")
	fs.BoolVar(&f.Local, "local", false, "run every collaborator in-process")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "local":
			f.SetLocal = true
		case "log-json":
			f.SetLogJSON = true
		}
	})
	return f, nil
}

// Apply overlays explicitly-set flags onto cfg.
func (f *Flags) Apply(cfg *Config) {
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}
	if f.P2PPort != 0 {
		cfg.P2P.Port = f.P2PPort
	}
	if f.Seeds != "" {
		cfg.P2P.Seeds = splitComma(f.Seeds)
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
	if f.SetLocal {
		cfg.Local = f.Local
	}
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
