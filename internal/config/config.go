package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Peer represents a peer node in the mesh.
type Peer struct {
	ID   string
	Addr string
}

// Config holds the node configuration.
type Config struct {
	NodeID              string
	ListenAddr          string
	Peers               []Peer
	DataDir             string
	LogLevel            string
	LogFormat           string
	RebroadcastInterval time.Duration
	RPCTimeout          time.Duration
}

// Default values applied by Load.
const (
	DefaultListenAddr          = "127.0.0.1:49191"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultRebroadcastInterval = 30 * time.Second
	DefaultRPCTimeout          = 2 * time.Second
)

// Flags defines the command line flags understood by Load.
func Flags(fs *pflag.FlagSet) {
	fs.String("node-id", "", "Unique ID of this node")
	fs.String("listen", DefaultListenAddr, "Address to serve the dataset service on")
	fs.String("peers", "", "Comma separated peers in the form id=addr")
	fs.String("data-dir", "", "Directory for the dataset database (in memory when empty)")
	fs.String("log-level", DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	fs.String("log-format", DefaultLogFormat, "Log format (text, json)")
	fs.Duration("rebroadcast-interval", DefaultRebroadcastInterval, "Interval between dataset announcements, 0 disables")
	fs.Duration("rpc-timeout", DefaultRPCTimeout, "Timeout for a single peer call")
}

// Load reads configuration from an optional TOML file at path and from fs.
// Flags that were set explicitly take precedence over the file.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("listen", DefaultListenAddr)
	v.SetDefault("log-level", DefaultLogLevel)
	v.SetDefault("log-format", DefaultLogFormat)
	v.SetDefault("rebroadcast-interval", DefaultRebroadcastInterval)
	v.SetDefault("rpc-timeout", DefaultRPCTimeout)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	peers, err := ParsePeers(v.GetString("peers"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		NodeID:              v.GetString("node-id"),
		ListenAddr:          v.GetString("listen"),
		Peers:               peers,
		DataDir:             v.GetString("data-dir"),
		LogLevel:            v.GetString("log-level"),
		LogFormat:           v.GetString("log-format"),
		RebroadcastInterval: v.GetDuration("rebroadcast-interval"),
		RPCTimeout:          v.GetDuration("rpc-timeout"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node ID is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.RebroadcastInterval < 0 {
		return fmt.Errorf("rebroadcast interval cannot be negative: %s", c.RebroadcastInterval)
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("rpc timeout must be positive: %s", c.RPCTimeout)
	}
	return nil
}

// ParsePeers parses a comma-separated list of peers in the format:
// "id1=addr1,id2=addr2,id3=addr3"
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=addr)", part)
		}

		id := strings.TrimSpace(kv[0])
		addr := strings.TrimSpace(kv[1])

		if id == "" || addr == "" {
			return nil, fmt.Errorf("peer ID and address cannot be empty: %s", part)
		}

		peers = append(peers, Peer{
			ID:   id,
			Addr: addr,
		})
	}

	return peers, nil
}

// RemotePeers returns the configured peers without this node.
func (c *Config) RemotePeers() []Peer {
	peers := make([]Peer, 0, len(c.Peers))
	for _, peer := range c.Peers {
		// Skip self if it appears in peers list
		if peer.ID != c.NodeID {
			peers = append(peers, peer)
		}
	}
	return peers
}

// PeerAddrs maps peer ID to address for every remote peer.
func (c *Config) PeerAddrs() map[string]string {
	addrs := make(map[string]string, len(c.Peers))
	for _, peer := range c.RemotePeers() {
		addrs[peer.ID] = peer.Addr
	}
	return addrs
}
