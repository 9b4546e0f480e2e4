package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fyrsmithlabs/ragvisor/internal/rag"
	"github.com/fyrsmithlabs/ragvisor/internal/sanitize"
	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the ingested documents",
		Long: `Answer a question using the chunks closest to it in the vector store.

Examples:
  ragvisor ask "What is the refund policy?"
  ragvisor ask --sources What changed in version 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := sanitize.Question(strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("question %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, appOptions{needGenerator: true})
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.pipeline.Ask(cmd.Context(), question)
			if res != nil {
				printAnswer(cmd.OutOrStdout(), res, showSources)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&showSources, "sources", false, "print the retrieved chunks")
	return cmd
}

func printAnswer(w io.Writer, res *rag.AskResult, showSources bool) {
	fmt.Fprintln(w, res.Answer)
	if !showSources || len(res.Retrieved) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sources:")
	for _, r := range res.Retrieved {
		fmt.Fprintf(w, "  [%s] %s\n", r.ChunkID, oneLine(r.Text, 120))
	}
	if res.FromCache {
		fmt.Fprintln(w, "(cached)")
	}
}

// oneLine collapses whitespace and truncates s to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
