package commands

import (
	"github.com/spf13/cobra"

	"github.com/MEKXH/cherub/internal/config"
)

var logLevelOverride string

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cherub",
		Short: "Cherub - capability gate for agent tool calls",
		Long:  `Cherub runs an LLM agent whose tool calls pass through a tiered capability policy before execution.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return configureLogger(config.DefaultConfig(), logLevelOverride)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return configureLogger(cfg, logLevelOverride)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		NewInitCmd(),
		NewRunCmd(),
		NewPolicyCmd(),
		NewApprovalCmd(),
		NewVersionCmd(),
	)

	return cmd
}
