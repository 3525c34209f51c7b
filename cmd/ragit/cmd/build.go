package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragit-kb/ragit/internal/async"
	"github.com/ragit-kb/ragit/internal/config"
	"github.com/ragit-kb/ragit/internal/index"
	"github.com/ragit-kb/ragit/internal/lifecycle"
	"github.com/ragit-kb/ragit/internal/llm"
	"github.com/ragit-kb/ragit/internal/store"
)

func newBuildCmd() *cobra.Command {
	var workers int
	var watch bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build chunks for every staged file",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot(".")
			if err != nil {
				return exitOnError(err)
			}
			if watch {
				return exitOnError(runBuildWatched(cmd.Context(), root, workers))
			}
			return exitOnError(runBuild(cmd.Context(), root, workers))
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "number of parallel build workers (0 = default)")
	cmd.Flags().BoolVar(&watch, "watch", false, "print live stage/file progress while building")
	return cmd
}

// runBuildWatched runs the build through async.BackgroundIndexer so a
// stale indexing.lock from a crashed prior run is caught up front, and
// prints a progress line each time the build's reported stage changes
// while indexer.Wait blocks for completion.
func runBuildWatched(ctx context.Context, root string, workers int) error {
	blobs := store.New(root)
	dataDir := blobs.DataDir()
	if async.HasIncompleteLock(dataDir) {
		return fmt.Errorf("ragit: a build is already running against %s (remove %s/indexing.lock if it crashed)", root, dataDir)
	}

	indexer := async.NewBackgroundIndexer(async.IndexerConfig{DataDir: dataDir})
	indexer.IndexFunc = func(ctx context.Context, progress *async.IndexProgress) error {
		progress.SetStage(async.StageChunking, 0)
		return runBuild(ctx, root, workers)
	}

	w := newOutputWriter()
	indexer.Start(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		last := ""
		for range ticker.C {
			snap := indexer.Progress().Snapshot()
			if snap.Stage != last {
				w.Statusf("→", "stage: %s", snap.Stage)
				last = snap.Stage
			}
			if !indexer.IsRunning() {
				return
			}
		}
	}()

	err := indexer.Wait()
	<-done
	return err
}

func runBuild(ctx context.Context, root string, workers int) error {
	blobs := store.New(root)

	api, err := config.LoadAPIConfig(blobs.DataDir())
	if err != nil {
		return err
	}
	build, err := config.LoadBuildConfig(blobs.DataDir())
	if err != nil {
		return err
	}

	summarizeBody, _ := lifecycle.DefaultPrompt("summarize")
	describeBody, _ := lifecycle.DefaultPrompt("describe_image")

	coordinator := index.NewCoordinator(index.CoordinatorConfig{
		Root:              root,
		Blobs:             blobs,
		Client:            newOllamaClient(),
		API:               api,
		Build:             build,
		Workers:           workers,
		SummarizeTemplate: llm.ParseTemplate(summarizeBody),
		DescribeTemplate:  llm.ParseTemplate(describeBody),
	})

	summary, err := coordinator.Build(ctx)
	if err != nil {
		return err
	}

	w := newOutputWriter()
	w.Successf("processed %d files, %d chunks", summary.FilesProcessed, summary.ChunksBuilt)
	for file, msg := range summary.Errors {
		w.Errorf("%s: %s", file, msg)
	}
	if len(summary.Errors) > 0 {
		return fmt.Errorf("build completed with %d error(s)", len(summary.Errors))
	}
	return nil
}
