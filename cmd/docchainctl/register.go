package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TorporOverload/DocChainValidator/internal/block"
	"github.com/TorporOverload/DocChainValidator/internal/docdigest"
	"github.com/TorporOverload/DocChainValidator/internal/ledger"
	"github.com/TorporOverload/DocChainValidator/internal/p2p"
	"github.com/TorporOverload/DocChainValidator/internal/pdfdoc"
	"github.com/TorporOverload/DocChainValidator/internal/signing"
)

func registerCmd(env *string) *cobra.Command {
	var keyPath string
	cmd := &cobra.Command{
		Use:   "register <pdf> <title>",
		Short: "mine and append every page of a PDF as a new ledger document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(*env, args[0], args[1], keyPath, cmd)
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "", "path to the submitter's PEM-encoded RSA private key")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func runRegister(env, pdfPath, title, keyPath string, cmd *cobra.Command) error {
	cfg, err := loadConfig(env)
	if err != nil {
		return err
	}

	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}
	priv, err := signing.ParsePrivateKeyPEM(string(keyPEM))
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	pubPEM, err := signing.PublicKeyToPEM(&priv.PublicKey)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}

	l, err := ledger.Open(cfg.Ledger.ChainPath, cfg.Ledger.Difficulty)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	if existing := l.GetByTitle(title); len(existing) > 0 {
		return fmt.Errorf("title %q is already registered with %d page(s)", title, len(existing))
	}

	reader := pdfdoc.NewLocalReader()
	pages, err := reader.Pages(pdfPath)
	if err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}
	if len(pages) == 0 {
		return fmt.Errorf("pdf %s has no pages", pdfPath)
	}

	var appended []*block.Block
	for i, content := range pages {
		digest := docdigest.Page(content, title, i+1)
		sig, err := signing.Sign(digest, priv)
		if err != nil {
			return fmt.Errorf("sign page %d: %w", i, err)
		}
		data := block.PageData{Title: title, Page: i, Content: content, PublicKey: pubPEM}
		committed, err := l.Append(data, sig, nil)
		if err != nil {
			return fmt.Errorf("mine page %d: %w", i, err)
		}
		appended = append(appended, committed)
		fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d committed at index %d, hash %s\n", i+1, len(pages), committed.Index, committed.CurrentHash)
	}

	announceToPeers(cfg.Network.BootstrapPeers, l, appended)
	return nil
}

// announceToPeers pushes every newly mined block to each configured peer
// via a one-shot handshake, so a running daemon picks up the submission
// immediately instead of waiting for its own ping cycle to notice the gap.
// Failures are logged, not fatal: the blocks are already durably committed
// locally, and any peer that misses the announcement will still catch up
// on its next PING/PONG exchange with some other synced peer.
func announceToPeers(peers []string, l *ledger.Ledger, appended []*block.Block) {
	if len(peers) == 0 || len(appended) == 0 {
		return
	}
	selfID := p2p.DerivePeerID(fmt.Sprintf("docchainctl-submitter-%d", os.Getpid()))
	for _, b := range appended {
		for _, peer := range peers {
			if err := p2p.AnnounceBlock(peer, selfID, l.Length(), b.CurrentHash, b); err != nil {
				logrus.WithField("component", "docchainctl").Warnf("announce block %d to %s: %v", b.Index, peer, err)
			}
		}
	}
}
