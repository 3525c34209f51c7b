package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ragit-kb/ragit/internal/config"
	"github.com/ragit-kb/ragit/internal/errors"
	"github.com/ragit-kb/ragit/internal/index"
	"github.com/ragit-kb/ragit/internal/lifecycle"
	"github.com/ragit-kb/ragit/internal/store"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new knowledge base in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := os.Getwd()
			if err != nil {
				return exitOnError(err)
			}
			return exitOnError(runInit(root))
		},
	}
}

func runInit(root string) error {
	blobs := store.New(root)
	if _, err := os.Stat(blobs.DataDir()); err == nil {
		return errors.IndexAlreadyExists(root)
	}
	if err := blobs.EnsureLayout(); err != nil {
		return err
	}
	if err := index.Save(blobs.DataDir(), index.New()); err != nil {
		return err
	}
	if err := config.SaveAPIConfig(blobs.DataDir(), config.DefaultAPIConfig()); err != nil {
		return err
	}
	if err := config.SaveBuildConfig(blobs.DataDir(), config.DefaultBuildConfig()); err != nil {
		return err
	}
	if err := config.SaveQueryConfig(blobs.DataDir(), config.DefaultQueryConfig()); err != nil {
		return err
	}
	if _, err := lifecycle.WriteDefaultPrompts(blobs.KindDir(store.KindPrompt)); err != nil {
		return err
	}

	w := newOutputWriter()
	w.Success("Initialized empty knowledge base at " + blobs.DataDir())
	return nil
}
