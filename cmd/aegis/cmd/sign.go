package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegis-gate/aegis/internal/config"
	"github.com/aegis-gate/aegis/internal/domain/approval"
)

var (
	signIntentHash string
	signPolicyHash string
	signScope      string
	signTTL        int64
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign an approval payload offline (dev-signer semantics)",
	Long: `Produce a signed ApprovalToken for a high-risk tool commit without going
through the /v1/approvals/sign HTTP endpoint. Reads the Ed25519 signing seed
from AEGIS_OPERATOR_SK_B64, exactly as the dev-signer endpoint does, and
prints the resulting token as JSON on stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.LoadSettings()
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		if settings.OperatorSKB64 == "" {
			return fmt.Errorf("AEGIS_OPERATOR_SK_B64 is not set")
		}
		if signIntentHash == "" || signPolicyHash == "" || signScope == "" {
			return fmt.Errorf("--intent-hash, --policy-hash, and --scope are required")
		}

		payload := approval.Payload{
			IntentHash:    signIntentHash,
			PolicyHash:    signPolicyHash,
			ExpiresAtUnix: time.Now().Unix() + signTTL,
			Scope:         signScope,
		}

		tok, err := approval.Sign(payload, settings.OperatorSKB64)
		if err != nil {
			return fmt.Errorf("sign: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tok)
	},
}

func init() {
	signCmd.Flags().StringVar(&signIntentHash, "intent-hash", "", "intent_hash from the prepare response")
	signCmd.Flags().StringVar(&signPolicyHash, "policy-hash", "", "policy_hash from the prepare response")
	signCmd.Flags().StringVar(&signScope, "scope", "", "tool_id the approval authorizes")
	signCmd.Flags().Int64Var(&signTTL, "ttl-seconds", 300, "seconds until the approval expires")
	rootCmd.AddCommand(signCmd)
}
