package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ragit-kb/ragit/internal/index"
	"github.com/ragit-kb/ragit/internal/store"
	"github.com/ragit-kb/ragit/internal/uid"
)

func newUIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uid [prefix-or-path]",
		Short: "Resolve a uid prefix or path against chunks, images and files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot(".")
			if err != nil {
				return exitOnError(err)
			}
			return exitOnError(runUID(root, args[0]))
		},
	}
}

func runUID(root, text string) error {
	blobs := store.New(root)
	meta, err := index.Load(blobs.DataDir())
	if err != nil {
		return err
	}

	res, err := index.Resolve(blobs, meta, uid.WithText(text))
	if err != nil {
		return err
	}

	w := newOutputWriter()
	if res.IsEmpty() {
		w.Warning("no match")
		return nil
	}
	for _, c := range res.Chunks {
		w.Statusf("chunk", "%s", c.String())
	}
	for _, i := range res.Images {
		w.Statusf("image", "%s", i.String())
	}
	for _, f := range res.ProcessedFiles {
		w.Statusf("file", "%s -> %s", f.Path, f.Uid.String())
	}
	for _, s := range res.StagedFiles {
		w.Statusf("staged", "%s", s)
	}
	return nil
}
