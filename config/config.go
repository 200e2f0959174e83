// Package config holds node configuration and the derivation of the fixed
// validator set for a run.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Config holds all node configuration. Peers must already be normalized
// host:port identities; the launcher resolves and normalizes the peer-list
// file, the core never re-parses it.
type Config struct {
	NodeID            string   `json:"node_id"`     // this node's validator identity (host:port)
	ListenAddr        string   `json:"listen_addr"` // bind address for the P2P listener
	DataDir           string   `json:"data_dir"`
	Peers             []string `json:"peers"`          // normalized remote validator identities
	QuorumSize        int      `json:"quorum_size"`    // 0 → simple majority of the validator set
	MaxBlockTxs       int      `json:"max_block_txs"`  // 0 → 500
	BlockIntervalMs   int64    `json:"block_interval_ms"`   // 0 → 1000
	ProposalTimeoutMs int64    `json:"proposal_timeout_ms"` // 0 → 10000
	HeartbeatMs       int64    `json:"heartbeat_ms"`        // 0 → 15000, <0 → disabled
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:     "127.0.0.1:9000",
		ListenAddr: "127.0.0.1:9000",
		DataDir:    "./data",
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if !strings.Contains(c.NodeID, ":") {
		return fmt.Errorf("node_id must be host:port, got %q", c.NodeID)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	for i, p := range c.Peers {
		if !strings.Contains(p, ":") {
			return fmt.Errorf("peers[%d]: must be host:port, got %q", i, p)
		}
	}
	validators := c.Validators()
	if c.QuorumSize < 0 || c.QuorumSize > len(validators) {
		return fmt.Errorf("quorum_size %d out of range for %d validators", c.QuorumSize, len(validators))
	}
	// The self identity must survive canonicalization into the set; a
	// collision with a peer entry would mean two hosts share one identity.
	self := CanonicalID(c.NodeID)
	for _, p := range c.Peers {
		if CanonicalID(p) == self {
			return fmt.Errorf("validator identity collision: peer %q equals node_id", p)
		}
	}
	return nil
}

// CanonicalID maps an identity to its single canonical representation:
// trimmed and lowercased, so differently-spelled references to one host
// collapse to one validator entry.
func CanonicalID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Validators derives the sorted deterministic validator set: the self
// identity union the configured peers, canonicalized and deduplicated.
// The set is fixed for the lifetime of a run.
func (c *Config) Validators() []string {
	set := make(map[string]struct{}, len(c.Peers)+1)
	set[CanonicalID(c.NodeID)] = struct{}{}
	for _, p := range c.Peers {
		set[CanonicalID(p)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Quorum returns the configured quorum size, defaulting to a simple majority
// of the validator set.
func (c *Config) Quorum() int {
	if c.QuorumSize > 0 {
		return c.QuorumSize
	}
	return len(c.Validators())/2 + 1
}

// MaxTxs returns the per-block transaction cap.
func (c *Config) MaxTxs() int {
	if c.MaxBlockTxs > 0 {
		return c.MaxBlockTxs
	}
	return 500
}

// BlockInterval returns the minimum spacing between proposals.
func (c *Config) BlockInterval() time.Duration {
	if c.BlockIntervalMs > 0 {
		return time.Duration(c.BlockIntervalMs) * time.Millisecond
	}
	return time.Second
}

// ProposalTimeout returns how long the scheduled leader of the next height
// waits without progress before the view-change hook fires.
func (c *Config) ProposalTimeout() time.Duration {
	if c.ProposalTimeoutMs > 0 {
		return time.Duration(c.ProposalTimeoutMs) * time.Millisecond
	}
	return 10 * time.Second
}

// HeartbeatInterval returns the application-level keepalive cadence, or 0
// when heartbeats are disabled.
func (c *Config) HeartbeatInterval() time.Duration {
	if c.HeartbeatMs < 0 {
		return 0
	}
	if c.HeartbeatMs > 0 {
		return time.Duration(c.HeartbeatMs) * time.Millisecond
	}
	return 15 * time.Second
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
