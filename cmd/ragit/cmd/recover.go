package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ragit-kb/ragit/internal/index"
	"github.com/ragit-kb/ragit/internal/store"
)

func newRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Best-effort repair of a knowledge base after a crashed build",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot(".")
			if err != nil {
				return exitOnError(err)
			}
			return exitOnError(runRecover(root))
		},
	}
}

func runRecover(root string) error {
	blobs := store.New(root)
	report, err := index.Recover(blobs)
	if err != nil {
		return err
	}

	w := newOutputWriter()
	if report.RestagedFile != "" {
		w.Statusf("~", "restaged %s (%d chunks purged)", report.RestagedFile, report.PurgedChunks)
	}
	w.Statusf("~", "rebuilt %d file index(es)", report.RebuiltFileIndexes)
	w.Statusf("~", "regenerated %d tfidf sidecar(s)", report.RegeneratedTfidf)
	w.Statusf("~", "dropped %d orphaned chunk(s)", report.DroppedChunks)
	for _, c := range report.ResetConfigs {
		w.Statusf("~", "reset config %s to defaults", c)
	}
	w.Successf("chunk_count now %d", report.ChunkCount)
	return nil
}
