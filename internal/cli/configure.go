package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/billowhq/billow/internal/config"
	"github.com/billowhq/billow/pkg/store"
)

var (
	credOrg      string
	credProvider string
	credAPIKey   string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Store provider API credentials for an organization",
	Long: `Store an LLM provider API key for an organization. Agents of that
organization use the stored key; without one their turns answer with a
fixed "credentials missing" reply instead of calling the provider.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&credOrg, "org", "", "organization id")
	configureCmd.Flags().StringVar(&credProvider, "provider", "anthropic", "provider name (anthropic, openai)")
	configureCmd.Flags().StringVar(&credAPIKey, "api-key", "", "provider API key")
	_ = configureCmd.MarkFlagRequired("org")
	_ = configureCmd.MarkFlagRequired("api-key")

	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	if credProvider != "anthropic" && credProvider != "openai" {
		return fmt.Errorf("unsupported provider: %s", credProvider)
	}

	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if err := st.PutCredential(context.Background(), credOrg, credProvider, credAPIKey); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	fmt.Printf("Stored %s credentials for org %s\n", credProvider, credOrg)
	return nil
}
