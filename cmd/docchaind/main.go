// Command docchaind runs one peer of the document ledger network: it opens
// the local chain file, starts the P2P node, starts the mining worker, and
// serves a small read-only status API.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TorporOverload/DocChainValidator/internal/ledger"
	"github.com/TorporOverload/DocChainValidator/internal/mining"
	"github.com/TorporOverload/DocChainValidator/internal/p2p"
	"github.com/TorporOverload/DocChainValidator/pkg/config"
)

var log = logrus.WithField("component", "docchaind")

func main() {
	rootCmd := &cobra.Command{Use: "docchaind"}
	rootCmd.AddCommand(runCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "start the document ledger node and block until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(env)
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment overlay merged on top of the default config")
	return cmd
}

func runNode(env string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lv, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("parse logging level: %w", err)
	}
	logrus.SetLevel(lv)

	l, err := ledger.Open(cfg.Ledger.ChainPath, cfg.Ledger.Difficulty)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	node := p2p.New(p2p.Config{
		ListenAddr:     cfg.Network.ListenAddr,
		BootstrapPeers: cfg.Network.BootstrapPeers,
		PeersPath:      cfg.Ledger.PeersPath,
	}, l)

	worker := mining.NewWorker(l, node, node)
	node.SetWorker(worker)

	if err := node.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	go worker.Run()

	status := newStatusServer(cfg.HTTP.ListenAddr, node)
	go func() {
		if err := status.Start(); err != nil && err != http.ErrServerClosed {
			log.Errorf("status api: %v", err)
		}
	}()

	log.Infof("docchaind listening on %s, peer id %s, status api on %s", cfg.Network.ListenAddr, node.PeerID(), cfg.HTTP.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	_ = status.Close()
	if err := node.Close(); err != nil {
		log.Errorf("close node: %v", err)
	}
	worker.Stop()
	return nil
}
