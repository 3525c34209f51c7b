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

func newPushCmd() *cobra.Command {
	var sizeLimit int64
	cmd := &cobra.Command{
		Use:   "push <url>",
		Short: "Push the knowledge base to a remote server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot(".")
			if err != nil {
				return exitOnError(err)
			}
			return exitOnError(runPush(cmd.Context(), root, args[0], sizeLimit))
		},
	}
	cmd.Flags().Int64Var(&sizeLimit, "size-limit", 64*1024*1024, "roll over to a new archive file past this many bytes")
	return cmd
}

func runPush(ctx context.Context, root, url string, sizeLimit int64) error {
	blobs := store.New(root)

	tmpDir, err := os.MkdirTemp("", "ragit-push-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	paths, err := archive.Create(blobs, archive.CreateOptions{
		OutputPrefix: filepath.Join(tmpDir, "push"),
		SizeLimit:    sizeLimit,
		PromptsDir:   blobs.KindDir(store.KindPrompt),
	})
	if err != nil {
		return err
	}

	client := remote.New(url)
	session, err := client.BeginPush(ctx)
	if err != nil {
		return err
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if err := session.PushArchive(ctx, data); err != nil {
			return err
		}
	}
	if err := session.Finalize(ctx); err != nil {
		return err
	}

	w := newOutputWriter()
	w.Successf("pushed %d archive(s) to %s", len(paths), url)
	return nil
}
