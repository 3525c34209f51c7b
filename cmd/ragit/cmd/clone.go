package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragit-kb/ragit/internal/archive"
	"github.com/ragit-kb/ragit/internal/remote"
	"github.com/ragit-kb/ragit/internal/store"
)

func newCloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <url> [dir]",
		Short: "Clone a remote knowledge base by downloading and extracting its archives",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) > 1 {
				dir = args[1]
			} else {
				dir = filepath.Base(args[0])
			}
			return exitOnError(runClone(cmd.Context(), args[0], dir))
		},
	}
}

func runClone(ctx context.Context, url, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err == nil {
		return fmt.Errorf("ragit: destination %s already exists", abs)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return err
	}

	client := remote.New(url)
	archiveIDs, err := client.ArchiveList(ctx)
	if err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp("", "ragit-clone-*")
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

	blobs := store.New(abs)
	if _, err := archive.Extract(abs, paths, blobs.KindDir(store.KindPrompt)); err != nil {
		os.RemoveAll(abs)
		return err
	}

	w := newOutputWriter()
	w.Successf("cloned %d archive(s) into %s", len(paths), abs)
	return nil
}
