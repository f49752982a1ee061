package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/brapikg/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect brapikg configuration",
	Long:  `View and validate the effective brapikg configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after config file, .env files and environment
variables have been applied. The Neo4j password is masked.`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [build|count|all]",
	Short: "Validate the configuration for a command",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	ctx := config.ValidationContextAll
	if len(args) == 1 {
		ctx = config.ValidationContext(args[0])
	}

	result := cfg.Validate(ctx)
	for _, warn := range result.Warnings {
		logger.Warn(warn)
	}
	if result.HasErrors() {
		return fmt.Errorf("%s", result.Error())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid for %s\n", ctx)
	return nil
}
