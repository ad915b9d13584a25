package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TorporOverload/DocChainValidator/internal/docdigest"
	"github.com/TorporOverload/DocChainValidator/internal/ledger"
	"github.com/TorporOverload/DocChainValidator/internal/pdfdoc"
	"github.com/TorporOverload/DocChainValidator/internal/signing"
	"github.com/TorporOverload/DocChainValidator/internal/textmatch"
)

func verifyCmd(env *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <pdf> <title>",
		Short: "check a re-presented PDF's pages against its registered ledger record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(*env, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runVerify(env, pdfPath, title string, cmd *cobra.Command) error {
	cfg, err := loadConfig(env)
	if err != nil {
		return err
	}

	l, err := ledger.Open(cfg.Ledger.ChainPath, cfg.Ledger.Difficulty)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	record := l.GetByTitle(title)
	if len(record) == 0 {
		return fmt.Errorf("no registered document titled %q", title)
	}

	reader := pdfdoc.NewLocalReader()
	pages, err := reader.Pages(pdfPath)
	if err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}

	out := cmd.OutOrStdout()
	tampered := false

	n := len(pages)
	if len(record) > n {
		n = len(record)
	}
	for i := 0; i < n; i++ {
		if i >= len(record) {
			fmt.Fprintf(out, "page %d: EXTRA (not present in the registered record)\n", i+1)
			tampered = true
			continue
		}
		if i >= len(pages) {
			fmt.Fprintf(out, "page %d: MISSING (present in the registered record, absent from this document)\n", i+1)
			tampered = true
			continue
		}

		rec, ok := record[i].PageDataRecord()
		if !ok {
			fmt.Fprintf(out, "page %d: record is not a page block, skipping\n", i+1)
			continue
		}

		digest := docdigest.Page(pages[i], title, i+1)
		pub, err := signing.ParsePublicKeyPEM(rec.PublicKey)
		if err != nil {
			fmt.Fprintf(out, "page %d: cannot parse registered public key: %v\n", i+1, err)
			tampered = true
			continue
		}

		if signing.Verify(digest, record[i].Signature, pub) {
			fmt.Fprintf(out, "page %d: OK\n", i+1)
			continue
		}

		result := textmatch.Compare(rec.Content, pages[i])
		fmt.Fprintf(out, "page %d: TAMPERED (%s, %.1f%% similar to the registered text)\n", i+1, result.Kind, result.Similarity)
		tampered = true
	}

	if tampered {
		return fmt.Errorf("document %q failed verification", title)
	}
	fmt.Fprintf(out, "document %q verified: all %d page(s) match the registered record\n", title, len(record))
	return nil
}
