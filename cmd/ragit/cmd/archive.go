package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragit-kb/ragit/internal/archive"
	"github.com/ragit-kb/ragit/internal/store"
)

func newArchiveCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "archive",
		Short: "Create or extract an archive of the knowledge base",
	}
	root.AddCommand(newArchiveCreateCmd())
	root.AddCommand(newArchiveExtractCmd())
	return root
}

func newArchiveCreateCmd() *cobra.Command {
	var (
		output        string
		sizeLimit     int64
		includeConfig bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Serialize the knowledge base into one or more archive files",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot(".")
			if err != nil {
				return exitOnError(err)
			}
			return exitOnError(runArchiveCreate(root, output, sizeLimit, includeConfig))
		},
	}
	cmd.Flags().StringVar(&output, "output", "archive", "output file prefix")
	cmd.Flags().Int64Var(&sizeLimit, "size-limit", 64*1024*1024, "roll over to a new file past this many bytes")
	cmd.Flags().BoolVar(&includeConfig, "include-config", false, "bundle configs/{api,build,query}.json")
	return cmd
}

func runArchiveCreate(root, output string, sizeLimit int64, includeConfig bool) error {
	blobs := store.New(root)
	paths, err := archive.Create(blobs, archive.CreateOptions{
		OutputPrefix:  output,
		SizeLimit:     sizeLimit,
		PromptsDir:    blobs.KindDir(store.KindPrompt),
		IncludeConfig: includeConfig,
	})
	if err != nil {
		return err
	}

	w := newOutputWriter()
	for _, p := range paths {
		w.Statusf("+", "%s", p)
	}
	w.Successf("wrote %d archive file(s)", len(paths))
	return nil
}

func newArchiveExtractCmd() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "extract [archive-files...]",
		Short: "Reconstruct a knowledge base from one or more archive files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputDir == "" {
				var err error
				outputDir, err = findRootFallback(".")
				if err != nil {
					return exitOnError(err)
				}
			}
			return exitOnError(runArchiveExtract(outputDir, args))
		},
	}
	cmd.Flags().StringVar(&outputDir, "root", "", "directory to reconstruct the knowledge base under (default: current directory)")
	return cmd
}

func runArchiveExtract(root string, archivePaths []string) error {
	blobs := store.New(root)
	result, err := archive.Extract(root, archivePaths, blobs.KindDir(store.KindPrompt))
	if err != nil {
		return err
	}

	w := newOutputWriter()
	w.Successf("extracted %d chunks, %d images, %d prompts", result.ChunksWritten, result.ImagesWritten, result.PromptsWritten)
	if result.Recovered != nil {
		w.Statusf("~", "recovery rebuilt %d file index(es)", result.Recovered.RebuiltFileIndexes)
	}
	return nil
}

// findRootFallback returns dir's absolute path without requiring an
// existing .ragit directory, since archive extract creates one fresh.
func findRootFallback(dir string) (string, error) {
	return filepath.Abs(dir)
}
