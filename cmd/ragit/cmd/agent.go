package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragit-kb/ragit/internal/agent"
	"github.com/ragit-kb/ragit/internal/config"
	"github.com/ragit-kb/ragit/internal/query"
	"github.com/ragit-kb/ragit/internal/store"
)

func newAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent [question]",
		Short: "Answer a question by driving the retrieval action loop",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot(".")
			if err != nil {
				return exitOnError(err)
			}
			return exitOnError(runAgent(cmd.Context(), root, strings.Join(args, " ")))
		},
	}
}

func runAgent(ctx context.Context, root, question string) error {
	blobs := store.New(root)

	api, err := config.LoadAPIConfig(blobs.DataDir())
	if err != nil {
		return err
	}
	queryCfg, err := config.LoadQueryConfig(blobs.DataDir())
	if err != nil {
		return err
	}
	qTemplates, err := query.LoadTemplates(blobs.KindDir(store.KindPrompt))
	if err != nil {
		return err
	}
	aTemplates, err := agent.LoadTemplates(blobs.KindDir(store.KindPrompt))
	if err != nil {
		return err
	}

	client := newOllamaClient()
	engine := query.NewEngine(blobs, client, api, queryCfg, qTemplates)
	a := agent.New(blobs, client, api, engine, aTemplates)

	result, err := a.Run(ctx, question)
	if err != nil {
		return err
	}

	w := newOutputWriter()
	w.Success(result.Answer)
	return nil
}
