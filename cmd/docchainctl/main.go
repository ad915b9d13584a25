// Command docchainctl is the operator CLI: it registers PDF documents,
// verifies re-presented PDFs against the ledger, and inspects chain and
// peer state, either by operating on the local chain file directly or by
// querying a running docchaind's status API.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/TorporOverload/DocChainValidator/pkg/config"
)

func main() {
	var env string
	rootCmd := &cobra.Command{
		Use:           "docchainctl",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment overlay merged on top of the default config")

	rootCmd.AddCommand(registerCmd(&env))
	rootCmd.AddCommand(verifyCmd(&env))
	rootCmd.AddCommand(chainCmd(&env))
	rootCmd.AddCommand(peersCmd(&env))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(env string) (*config.Config, error) {
	_ = godotenv.Load()
	return config.Load(env)
}
