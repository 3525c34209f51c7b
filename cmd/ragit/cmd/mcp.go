package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ragit-kb/ragit/internal/agent"
	"github.com/ragit-kb/ragit/internal/config"
	"github.com/ragit-kb/ragit/internal/logging"
	"github.com/ragit-kb/ragit/internal/mcpserver"
	"github.com/ragit-kb/ragit/internal/query"
	"github.com/ragit-kb/ragit/internal/store"
)

func newMCPCmd() *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve this knowledge base's query/search/agent tools over MCP (stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot(".")
			if err != nil {
				return exitOnError(err)
			}
			return exitOnError(runMCP(cmd.Context(), root, debug))
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "write a debug-level log under ~/.ragit/logs (stdout/stderr stay clear for the MCP transport)")
	return cmd
}

func runMCP(ctx context.Context, root string, debug bool) error {
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

	client := newOllamaClient()
	engine := query.NewEngine(blobs, client, api, queryCfg, qTemplates)

	var agt *agent.Agent
	if aTemplates, err := agent.LoadTemplates(blobs.KindDir(store.KindPrompt)); err == nil {
		agt = agent.New(blobs, client, api, engine, aTemplates)
	}

	logger := slog.Default()
	if debug {
		cleanup, err := logging.SetupMCPMode()
		if err != nil {
			return err
		}
		defer cleanup()
		logger = slog.Default()
	}

	srv, err := mcpserver.NewServer(blobs, engine, agt)
	if err != nil {
		return err
	}
	srv.SetLogger(logger)
	return srv.Serve(ctx)
}
