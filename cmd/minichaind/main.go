// Command minichaind starts a MiniChain validator node.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Asadullah378/MiniChain/config"
	"github.com/Asadullah378/MiniChain/node"
	"github.com/Asadullah378/MiniChain/storage"
)

// fatalDrainDelay gives the log sink and peers a moment before exiting on an
// unrecoverable error.
const fatalDrainDelay = 2 * time.Second

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	peersPath := flag.String("peers", "", "path to peer list file (one host:port per line)")
	logJSON := flag.Bool("log-json", false, "emit logs as JSON records")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	log := logrus.New()
	if *logJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("log level: %v", err)
	}
	log.SetLevel(level)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// The launcher owns peer-list parsing; the core only ever sees the
	// normalized identities.
	if *peersPath != "" {
		peers, err := readPeerList(*peersPath)
		if err != nil {
			log.Fatalf("peer list: %v", err)
		}
		cfg.Peers = peers
		if err := cfg.Validate(); err != nil {
			log.Fatalf("config validation: %v", err)
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "index"))
	if err != nil {
		log.Fatalf("open index db: %v", err)
	}
	defer db.Close()

	n, err := node.New(log, cfg, db, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("node: %v", err)
	}
	if err := n.Start(); err != nil {
		log.Fatalf("start: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.WithField("event", "shutdown").Infof("received %s", sig)
		n.Stop()
	case <-n.Fatal():
		// Keep diagnostics reachable for a short drain, then exit nonzero.
		time.Sleep(fatalDrainDelay)
		n.Stop()
		os.Exit(1)
	}
}

// readPeerList parses a plain-text peer file: one host:port per line, blank
// lines and '#' comments ignored, entries normalized to canonical identities.
func readPeerList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var peers []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, ":") {
			return nil, fmt.Errorf("malformed peer entry %q", line)
		}
		id := config.CanonicalID(line)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		peers = append(peers, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return peers, nil
}
