package main

import (
	"fmt"
	"os"

	"github.com/2oast/Bean-Bot/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var forceInit bool

// configCmd manages beanbot.yaml
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, check or print the configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default beanbot.yaml",
	RunE:  initConfig,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the effective configuration",
	RunE:  checkConfig,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE:  showConfig,
}

func init() {
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configShowCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}
	// Defaults only: environment values such as API keys stay out of the file.
	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
	return nil
}

func checkConfig(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: ok\n", configPath)
	if cfg.Server.SharedSecret == config.DefaultSharedSecret {
		fmt.Fprintln(out, "warning: shared secret is the default")
	}
	if !cfg.RemoteEnabled() {
		fmt.Fprintln(out, "note: no remote generator; replies use the fallback responder")
	}
	return nil
}

func showConfig(cmd *cobra.Command, args []string) error {
	masked := *cfg
	masked.Server.SharedSecret = mask(masked.Server.SharedSecret)
	masked.LLM.APIKey = mask(masked.LLM.APIKey)

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}
