package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scanward/scanward/internal/auth"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an API key",
	Long: `Generate a new API key for the trigger API. The plaintext key is shown
once; put the bcrypt hash into the api.auth.key_hashes list of the
daemon configuration and hand the key to the client.`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, _ []string) error {
	key, hash, err := auth.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("failed to generate API key: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "API key:  %s\n", key)
	fmt.Fprintf(cmd.OutOrStdout(), "Hash:     %s\n", hash)
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), "Store the hash under api.auth.key_hashes in the daemon config.")
	fmt.Fprintln(cmd.OutOrStdout(), "The key itself is not recoverable; keep it safe.")
	return nil
}
