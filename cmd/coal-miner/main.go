// Coal Miner - client for the COAL/ORE mining coordinator
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tos-network/coal-miner/internal/config"
	"github.com/tos-network/coal-miner/internal/coordinator"
	"github.com/tos-network/coal-miner/internal/identity"
	"github.com/tos-network/coal-miner/internal/journal"
	"github.com/tos-network/coal-miner/internal/supervisor"
	"github.com/tos-network/coal-miner/internal/util"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("coal-miner v%s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := util.InitLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	util.Infof("coal-miner v%s starting", version)

	signer, err := identity.NewSigner(cfg.Identity.PrivateKeyHex)
	if err != nil {
		util.Fatalf("Invalid private key: %v", err)
	}

	pubkeyHex := cfg.Identity.PublicKeyHex
	if pubkeyHex == "" {
		pubkeyHex = signer.DerivePublicKeyHex()
	}
	pubkey, err := identity.Pubkey(pubkeyHex)
	if err != nil {
		util.Fatalf("Invalid public key: %v", err)
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		util.Fatalf("Failed to open earnings journal: %v", err)
	}
	defer j.Close()

	client := coordinator.New(cfg.Coordinator.Base, cfg.Coordinator.Unsecure, cfg.Coordinator.Timeout)

	sup, err := supervisor.New(cfg, client, signer, pubkey, pubkeyHex, j)
	if err != nil {
		util.Fatalf("Failed to build supervisor: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		util.Info("Shutting down...")
		sup.Stop()
	}()

	util.Info("coal-miner started. Press Ctrl+C to stop.")
	sup.Run()
	util.Info("coal-miner stopped")
}
