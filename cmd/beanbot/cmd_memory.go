package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/2oast/Bean-Bot/internal/chat"
	"github.com/2oast/Bean-Bot/internal/perception"
	"github.com/2oast/Bean-Bot/internal/store"

	"github.com/spf13/cobra"
)

var (
	transcriptLimit int
	statsJSON       bool
)

// factsCmd inspects and edits stored facts
var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "List, add or forget an agent's stored facts",
}

var factsListCmd = &cobra.Command{
	Use:   "list [agent-key]",
	Short: "List facts in insertion order",
	Args:  cobra.ExactArgs(1),
	RunE:  listFacts,
}

var factsAddCmd = &cobra.Command{
	Use:   "add [agent-key] [fact...]",
	Short: "Store a fact, as if the agent said remember:",
	Args:  cobra.MinimumNArgs(2),
	RunE:  addFact,
}

var factsForgetCmd = &cobra.Command{
	Use:   "forget [agent-key] [fact...]",
	Short: "Remove a fact, as if the agent said forget:",
	Args:  cobra.MinimumNArgs(2),
	RunE:  forgetFact,
}

// consentCmd inspects and edits the consent registry
var consentCmd = &cobra.Command{
	Use:   "consent",
	Short: "Show or set an agent's consent flag",
}

var consentShowCmd = &cobra.Command{
	Use:   "show [agent-key]",
	Short: "Show whether facts may be used in remote prompts",
	Args:  cobra.ExactArgs(1),
	RunE:  showConsent,
}

var consentSetCmd = &cobra.Command{
	Use:   "set [agent-key] [yes|no]",
	Short: "Set the consent flag",
	Args:  cobra.ExactArgs(2),
	RunE:  setConsent,
}

// transcriptCmd reads the transcript log
var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Read the transcript log",
}

var transcriptTailCmd = &cobra.Command{
	Use:   "tail [agent-key]",
	Short: "Show the newest transcript entries, optionally for one agent",
	Args:  cobra.MaximumNArgs(1),
	RunE:  tailTranscript,
}

// statsCmd prints table sizes
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE:  showStats,
}

func init() {
	factsCmd.AddCommand(factsListCmd)
	factsCmd.AddCommand(factsAddCmd)
	factsCmd.AddCommand(factsForgetCmd)

	consentCmd.AddCommand(consentShowCmd)
	consentCmd.AddCommand(consentSetCmd)

	transcriptTailCmd.Flags().IntVarP(&transcriptLimit, "limit", "n", 20, "Number of entries")
	transcriptCmd.AddCommand(transcriptTailCmd)

	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print as JSON")
}

// withSession opens the store, acquires one session and runs fn.
func withSession(ctx context.Context, fn func(*store.Session) error) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := st.Acquire(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess)
}

// applyCommand routes a mutation through the orchestrator so that facts and
// consent keep a single writer.
func applyCommand(cmd *cobra.Command, agentKey string, c chat.Command) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	resp, err := newOrchestrator(st, perception.Disabled{}).Apply(cmd.Context(), agentKey, c)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Reply)
	return nil
}

func listFacts(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), func(sess *store.Session) error {
		facts, err := sess.ListFacts(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(facts) == 0 {
			fmt.Fprintf(out, "No facts stored for %s\n", args[0])
			return nil
		}
		for i, f := range facts {
			fmt.Fprintf(out, "%d. %s\n", i+1, f)
		}
		return nil
	})
}

func addFact(cmd *cobra.Command, args []string) error {
	fact := strings.Join(args[1:], " ")
	return applyCommand(cmd, args[0], chat.Command{Kind: chat.KindRemember, Payload: strings.TrimSpace(fact)})
}

func forgetFact(cmd *cobra.Command, args []string) error {
	fact := strings.Join(args[1:], " ")
	return applyCommand(cmd, args[0], chat.Command{Kind: chat.KindForget, Payload: strings.TrimSpace(fact)})
}

func showConsent(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), func(sess *store.Session) error {
		allowed, err := sess.GetConsent(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		state := "OFF"
		if allowed {
			state = "ON"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "learning for %s is %s\n", args[0], state)
		return nil
	})
}

func setConsent(cmd *cobra.Command, args []string) error {
	var allow bool
	switch strings.ToLower(args[1]) {
	case "yes", "on", "true":
		allow = true
	case "no", "off", "false":
	default:
		return fmt.Errorf("consent must be yes or no, got %q", args[1])
	}
	return applyCommand(cmd, args[0], chat.Command{Kind: chat.KindConsent, Allow: allow})
}

func tailTranscript(cmd *cobra.Command, args []string) error {
	agentKey := ""
	if len(args) == 1 {
		agentKey = args[0]
	}
	return withSession(cmd.Context(), func(sess *store.Session) error {
		entries, err := sess.RecentTranscript(cmd.Context(), agentKey, transcriptLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		// oldest first, like a log tail
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			fmt.Fprintf(out, "%s  %s (%s) @%s: %s\n",
				e.Timestamp.UTC().Format(time.RFC3339), e.AgentName, e.AgentKey, e.Region, e.Message)
		}
		return nil
	})
}

func showStats(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), func(sess *store.Session) error {
		st, err := sess.Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if statsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		fmt.Fprintf(out, "Store:              %s (%s)\n", cfg.Memory.DatabasePath, cfg.Memory.Driver)
		fmt.Fprintf(out, "Transcript entries: %d\n", st.TranscriptEntries)
		fmt.Fprintf(out, "Agents seen:        %d\n", st.Agents)
		fmt.Fprintf(out, "Facts:              %d\n", st.Facts)
		fmt.Fprintf(out, "Consent granted:    %d\n", st.ConsentGranted)
		return nil
	})
}
