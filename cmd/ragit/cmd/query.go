package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragit-kb/ragit/internal/config"
	"github.com/ragit-kb/ragit/internal/query"
	"github.com/ragit-kb/ragit/internal/session"
	"github.com/ragit-kb/ragit/internal/store"
)

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a natural-language question against the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot(".")
			if err != nil {
				return exitOnError(err)
			}
			return exitOnError(runQuery(cmd.Context(), root, strings.Join(args, " ")))
		},
	}
}

func runQuery(ctx context.Context, root, question string) error {
	blobs := store.New(root)

	api, err := config.LoadAPIConfig(blobs.DataDir())
	if err != nil {
		return err
	}
	queryCfg, err := config.LoadQueryConfig(blobs.DataDir())
	if err != nil {
		return err
	}
	templates, err := query.LoadTemplates(blobs.KindDir(store.KindPrompt))
	if err != nil {
		return err
	}

	engine := query.NewEngine(blobs, newOllamaClient(), api, queryCfg, templates)

	answer, err := engine.Query(ctx, question, []session.QueryTurn{})
	if err != nil {
		return err
	}

	w := newOutputWriter()
	w.Success(answer.Text)
	return nil
}
