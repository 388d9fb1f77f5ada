package main

import (
	"context"
	"fmt"
	"os"

	"github.com/2oast/Bean-Bot/internal/chat"
	"github.com/2oast/Bean-Bot/internal/config"
	"github.com/2oast/Bean-Bot/internal/logging"
	"github.com/2oast/Bean-Bot/internal/perception"
	"github.com/2oast/Bean-Bot/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Set by PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "beanbot",
	Short: "beanbot - conversational endpoint for in-world agents",
	Long: `beanbot answers chat messages from in-world objects. Each message is
logged, memory commands (consent:, remember:, forget:) are applied, and
everything else is answered by a remote language model or, when that is
unavailable, by a built-in rule-based responder.

Run "beanbot serve" to start the HTTP endpoint.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, err = logging.Initialize(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to beanbot.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(factsCmd)
	rootCmd.AddCommand(consentCmd)
	rootCmd.AddCommand(transcriptCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore opens the configured database.
func openStore() (*store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return store.Open(cfg.Memory.Driver, cfg.Memory.DatabasePath)
}

// sessions adapts *store.Store to the orchestrator's Store interface.
func sessions(st *store.Store) chat.StoreFunc {
	return func(ctx context.Context) (chat.Session, error) {
		s, err := st.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// newOrchestrator builds the orchestrator from cfg around gen.
func newOrchestrator(st *store.Store, gen perception.Generator) *chat.Orchestrator {
	return chat.NewOrchestrator(sessions(st), gen, chat.Config{
		RemoteEnabled: cfg.RemoteEnabled(),
		SystemPrompt:  cfg.LLM.SystemPrompt,
		FactLimit:     cfg.Memory.FactContextLimit,
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		Timeout:       cfg.GetLLMTimeout(),
	})
}
