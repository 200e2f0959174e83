package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidatorsSortedAndDeduped(t *testing.T) {
	cfg := &Config{
		NodeID:     "NodeB.cluster:9001",
		ListenAddr: "0.0.0.0:9001",
		DataDir:    "./data",
		Peers:      []string{"nodec.cluster:9002", " nodea.cluster:9000 ", "nodec.cluster:9002"},
	}
	got := cfg.Validators()
	require.Equal(t, []string{"nodea.cluster:9000", "nodeb.cluster:9001", "nodec.cluster:9002"}, got)
}

func TestCanonicalID(t *testing.T) {
	require.Equal(t, "nodea:9000", CanonicalID(" NodeA:9000 "))
	require.Equal(t, CanonicalID("nodea:9000"), CanonicalID("NODEA:9000"))
}

func TestQuorumDefaultsToMajority(t *testing.T) {
	cfg := &Config{
		NodeID: "a:1", ListenAddr: "a:1", DataDir: "d",
		Peers: []string{"b:1", "c:1"},
	}
	require.Equal(t, 2, cfg.Quorum())

	cfg.Peers = []string{"b:1", "c:1", "d:1", "e:1"}
	require.Equal(t, 3, cfg.Quorum())

	cfg.QuorumSize = 4
	require.Equal(t, 4, cfg.Quorum())
}

func TestValidateRejectsIdentityCollision(t *testing.T) {
	cfg := &Config{
		NodeID: "A:1", ListenAddr: "a:1", DataDir: "d",
		Peers: []string{"a:1"},
	}
	require.ErrorContains(t, cfg.Validate(), "identity collision")
}

func TestValidateRejectsMalformed(t *testing.T) {
	cfg := &Config{NodeID: "", ListenAddr: "a:1", DataDir: "d"}
	require.Error(t, cfg.Validate())

	cfg = &Config{NodeID: "noport", ListenAddr: "a:1", DataDir: "d"}
	require.Error(t, cfg.Validate())

	cfg = &Config{NodeID: "a:1", ListenAddr: "a:1", DataDir: "d", Peers: []string{"noport"}}
	require.Error(t, cfg.Validate())

	cfg = &Config{NodeID: "a:1", ListenAddr: "a:1", DataDir: "d", QuorumSize: 5}
	require.Error(t, cfg.Validate())
}

func TestDurationDefaults(t *testing.T) {
	cfg := &Config{}
	require.Equal(t, time.Second, cfg.BlockInterval())
	require.Equal(t, 10*time.Second, cfg.ProposalTimeout())
	require.Equal(t, 15*time.Second, cfg.HeartbeatInterval())
	require.Equal(t, 500, cfg.MaxTxs())

	cfg.BlockIntervalMs = 250
	require.Equal(t, 250*time.Millisecond, cfg.BlockInterval())
	cfg.HeartbeatMs = -1
	require.Zero(t, cfg.HeartbeatInterval())
}

func TestLoadSaveRoundTrip(t *testing.T) {
	cfg := &Config{
		NodeID:     "a.local:9000",
		ListenAddr: "127.0.0.1:9000",
		DataDir:    t.TempDir(),
		Peers:      []string{"b.local:9001"},
		QuorumSize: 2,
	}
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.NodeID, loaded.NodeID)
	require.Equal(t, cfg.Peers, loaded.Peers)
	require.Equal(t, 2, loaded.Quorum())
}
