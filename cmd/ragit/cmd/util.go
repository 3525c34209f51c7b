package cmd

import "fmt"

// errExitWithCount returns a non-nil error when n problems were found,
// so the command exits nonzero without duplicating the problem text
// already printed to stdout.
func errExitWithCount(n int) error {
	if n == 0 {
		return nil
	}
	return fmt.Errorf("%d problem(s) found", n)
}
