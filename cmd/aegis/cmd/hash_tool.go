package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var hashToolCmd = &cobra.Command{
	Use:   "hash-tool <path>",
	Short: "Print the sha256 hex of an executable, for a ToolSpec",
	Long: `Compute the SHA-256 digest of a tool executable and print it as lowercase
hex, for populating a ToolSpec's sha256_hex field in a policy document.

Example:
  aegis hash-tool /bin/bash
  # Output: <64 hex characters>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(h.Sum(nil)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashToolCmd)
}
