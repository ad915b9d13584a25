package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TorporOverload/DocChainValidator/internal/p2p"
)

func peersCmd(env *string) *cobra.Command {
	cmd := &cobra.Command{Use: "peers", Short: "inspect and manage known peers"}
	cmd.AddCommand(peersListCmd(env))
	cmd.AddCommand(peersAddCmd(env))
	return cmd
}

func peersListCmd(env *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list the peers the running node currently knows about",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*env)
			if err != nil {
				return err
			}
			var known map[string]string
			if err := getJSON(cfg.HTTP.ListenAddr, "/peers", &known); err != nil {
				return fmt.Errorf("query status api: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(known) == 0 {
				fmt.Fprintln(out, "no known peers")
				return nil
			}
			for id, endpoint := range known {
				fmt.Fprintf(out, "%s  %s\n", id, endpoint)
			}
			return nil
		},
	}
}

// peersAddCmd writes directly to the node's peers file rather than calling
// the daemon, since the status API is intentionally read-only. The new peer
// takes effect the next time the daemon (re)starts and loads its peer set.
func peersAddCmd(env *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add <host:port>",
		Short: "add a bootstrap peer to the node's peers file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*env)
			if err != nil {
				return err
			}
			endpoint := args[0]
			if err := addPeerToFile(cfg.Ledger.PeersPath, endpoint); err != nil {
				return fmt.Errorf("add peer: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s to %s (restart the daemon to connect)\n", endpoint, cfg.Ledger.PeersPath)
			return nil
		},
	}
}

func addPeerToFile(path, endpoint string) error {
	known := make(map[string]string)
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, &known); err != nil {
			return fmt.Errorf("parse existing peers file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read peers file: %w", err)
	}

	known[p2p.DerivePeerID(endpoint)] = endpoint

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create peers directory: %w", err)
	}
	payload, err := json.MarshalIndent(known, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal peers: %w", err)
	}
	return os.WriteFile(path, payload, 0o644)
}
