package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragit-kb/ragit/internal/archive"
	"github.com/ragit-kb/ragit/internal/remote"
	"github.com/ragit-kb/ragit/internal/store"
)

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <url>",
		Short: "Pull new archives from a remote and merge them into the local knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot(".")
			if err != nil {
				return exitOnError(err)
			}
			return exitOnError(runPull(cmd.Context(), root, args[0]))
		},
	}
}

func runPull(ctx context.Context, root, url string) error {
	blobs := store.New(root)
	client := remote.New(url)

	archiveIDs, err := client.ArchiveList(ctx)
	if err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp("", "ragit-pull-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	var paths []string
	for _, id := range archiveIDs {
		data, err := client.FetchArchive(ctx, id)
		if err != nil {
			return err
		}
		path := filepath.Join(tmpDir, id)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		paths = append(paths, path)
	}

	result, err := archive.Extract(root, paths, blobs.KindDir(store.KindPrompt))
	if err != nil {
		return err
	}

	w := newOutputWriter()
	w.Successf("pulled %d archive(s): %d chunks, %d images", len(paths), result.ChunksWritten, result.ImagesWritten)
	return nil
}
