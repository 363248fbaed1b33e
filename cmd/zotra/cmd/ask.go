package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"zotra/internal/output"
	"zotra/internal/research"
	"zotra/internal/retrieve"
)

// askOptions holds CLI flags for ask.
type askOptions struct {
	question string
	quiet    bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a research question from the indexed library",
		Long: `Run the iterative research loop: generate search queries, retrieve
chunks, synthesize knowledge, and repeat until the model judges the
context sufficient or the depth limit is reached. Prints a markdown
research report with cited sources.

Without a question, zotra prompts for one on stdin.

Examples:
  zotra ask "how does attention relate to memory consolidation?"
  zotra ask --question "what is integrated information theory?"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.question = args[0]
			}
			return runAsk(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.question, "question", "", "The research question")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", false, "Suppress progress output, print only the report")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, opts askOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	index, embedder, err := openIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer index.Close()
	defer embedder.Close()

	model, err := newChatModel(ctx, cfg)
	if err != nil {
		return err
	}
	defer model.Close()

	out := output.New(cmd.ErrOrStderr())
	retriever := retrieve.New(index, logger())

	loop := research.New(retriever, model, cfg.Research, logger())
	loop.SetInput(func(_ context.Context, prompt string) (string, error) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s\n> ", prompt)
		reader := bufio.NewReader(cmd.InOrStdin())
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	})
	if !opts.quiet {
		loop.SetTrace(func(node string, state *research.State) {
			switch node {
			case "gen_query":
				out.Statusf("*", "Round %d: generating search query", state.Rounds()+1)
			case "search":
				out.Statusf("*", "Searching: %s", lastQuery(state))
			case "synthesize":
				out.Status("*", "Synthesizing knowledge")
			case "judge":
				out.Status("*", "Judging coverage")
			case "finalize":
				out.Status("*", "Writing final report")
			}
		})
	}

	result, err := loop.Run(ctx, opts.question)
	if err != nil {
		return err
	}

	if !opts.quiet {
		out.Successf("Done after %d rounds", result.Rounds)
		out.Newline()
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Response)
	return nil
}

func lastQuery(state *research.State) string {
	if len(state.SearchQueries) == 0 {
		return ""
	}
	return state.SearchQueries[len(state.SearchQueries)-1]
}
