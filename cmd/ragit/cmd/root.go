// Package cmd provides the CLI commands for ragit.
package cmd

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragit-kb/ragit/internal/errors"
	"github.com/ragit-kb/ragit/internal/output"
	"github.com/ragit-kb/ragit/internal/profiling"
	"github.com/ragit-kb/ragit/pkg/version"
)

var (
	profileCPU string
	profileMem string
	profiler   = profiling.NewProfiler()
	cpuCleanup func()
)

// NewRootCmd builds the root cobra command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "ragit",
		Short:   "Local-first, content-addressed retrieval-augmented knowledge base",
		Version: version.Version,
	}
	root.SetVersionTemplate("ragit version {{.Version}}\n")

	root.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "write CPU profile to file")
	root.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "write memory profile to file")
	root.PersistentPreRunE = func(*cobra.Command, []string) error {
		if profileCPU == "" {
			return nil
		}
		var err error
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		return err
	}
	root.PersistentPostRunE = func(*cobra.Command, []string) error {
		if cpuCleanup != nil {
			cpuCleanup()
			cpuCleanup = nil
		}
		if profileMem != "" {
			return profiler.WriteHeap(profileMem)
		}
		return nil
	}

	root.AddCommand(newInitCmd())
	root.AddCommand(newStageCmd())
	root.AddCommand(newBuildCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newAgentCmd())
	root.AddCommand(newMCPCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newRecoverCmd())
	root.AddCommand(newUIDCmd())
	root.AddCommand(newArchiveCmd())
	root.AddCommand(newCloneCmd())
	root.AddCommand(newPushCmd())
	root.AddCommand(newPullCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// findRoot locates the knowledge base root containing a .ragit directory,
// starting at dir and walking up to each parent in turn.
func findRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(filepath.Join(abs, ".ragit")); err == nil && info.IsDir() {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("ragit: no .ragit directory found above %s", dir)
		}
		abs = parent
	}
}

func newOutputWriter() *output.Writer {
	return output.New(os.Stdout)
}

func exitOnError(err error) error {
	if err == nil {
		return nil
	}
	var kberr *errors.KBError
	if ok := stderrors.As(err, &kberr); ok {
		fmt.Fprintln(os.Stderr, kberr.Error())
		return kberr
	}
	fmt.Fprintln(os.Stderr, err.Error())
	return err
}
