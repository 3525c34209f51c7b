package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ragit-kb/ragit/internal/index"
	"github.com/ragit-kb/ragit/internal/store"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the knowledge base's on-disk invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot(".")
			if err != nil {
				return exitOnError(err)
			}
			return exitOnError(runCheck(root))
		},
	}
}

func runCheck(root string) error {
	blobs := store.New(root)
	report, err := index.Check(blobs)
	if err != nil {
		return err
	}

	w := newOutputWriter()
	if report.Ok() {
		w.Success("knowledge base is sound")
		return nil
	}
	for _, p := range report.Problems {
		w.Error(p)
	}
	return errExitWithCount(len(report.Problems))
}
