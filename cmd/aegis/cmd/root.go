// Package cmd provides the CLI commands for the Aegis gateway.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Aegis - policy-enforcing gateway for AI clients and tool execution",
	Long: `Aegis sits between AI clients and upstream chat/completion providers, and
between AI agents and local tool executors. It screens outbound prompts
against deny rules, runs tool invocations through a two-phase prepare/commit
protocol bound to a cryptographic digest, and writes every decision to a
tamper-evident audit ledger.

Configuration is read from AEGIS_* environment variables (AEGIS_POLICY_PATH,
AEGIS_BIND, AEGIS_AUDIT_PATH, AEGIS_ARTIFACTS_DIR, AEGIS_UPSTREAM,
AEGIS_OPA_URL, AEGIS_OPA_PATH, AEGIS_SANDBOX_PATH, AEGIS_OPERATOR_SK_B64,
AEGIS_DEV_SIGNER, AEGIS_LOG_LEVEL, AEGIS_METRICS_ADDR).

Commands:
  serve       Run the gateway's HTTP transport
  sign        Sign an approval payload offline (dev-signer semantics)
  hash-tool   Print the sha256 hex of an executable, for a ToolSpec
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
