package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/TorporOverload/DocChainValidator/internal/ledger"
	"github.com/TorporOverload/DocChainValidator/internal/p2p"
)

func chainCmd(env *string) *cobra.Command {
	cmd := &cobra.Command{Use: "chain", Short: "inspect chain state"}
	cmd.AddCommand(chainStatusCmd(env))
	cmd.AddCommand(chainHistoryCmd(env))
	return cmd
}

func chainStatusCmd(env *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "query the running node's network and chain status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*env)
			if err != nil {
				return err
			}
			var stats p2p.Stats
			if err := getJSON(cfg.HTTP.ListenAddr, "/chain/height", &stats); err != nil {
				return fmt.Errorf("query status api: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "peer id:          %s\n", stats.PeerID)
			fmt.Fprintf(out, "chain height:     %d\n", stats.ChainHeight)
			fmt.Fprintf(out, "latest hash:      %s\n", stats.LatestHash)
			fmt.Fprintf(out, "connected peers:  %d\n", stats.ConnectedPeers)
			fmt.Fprintf(out, "known peers:      %d\n", stats.KnownPeers)
			fmt.Fprintf(out, "pending retries:  %d\n", stats.PendingRetries)
			fmt.Fprintf(out, "sync in progress: %t\n", stats.SyncInProgress)
			return nil
		},
	}
}

func chainHistoryCmd(env *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history <title>",
		Short: "list every committed block for a registered document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*env)
			if err != nil {
				return err
			}
			l, err := ledger.Open(cfg.Ledger.ChainPath, cfg.Ledger.Difficulty)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			blocks := l.GetByTitle(args[0])
			if len(blocks) == 0 {
				return fmt.Errorf("no registered document titled %q", args[0])
			}
			out := cmd.OutOrStdout()
			for _, b := range blocks {
				rec, _ := b.PageDataRecord()
				fmt.Fprintf(out, "index %d  page %d  hash %s  previous %s\n", b.Index, rec.Page+1, b.CurrentHash, b.PreviousHash)
			}
			return nil
		},
	}
}

func getJSON(addr, path string, v any) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
