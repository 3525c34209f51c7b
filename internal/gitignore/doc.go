// Package gitignore matches candidate source paths against .gitignore-style
// exclude rules so the scanner can skip paths a project has opted out of
// indexing.
//
// Supported syntax (see https://git-scm.com/docs/gitignore):
//   - literal and wildcard patterns (*.log, temp/)
//   - double-star patterns (**/build, pkg/**)
//   - rooted patterns (/dist)
//   - negation (!keep.md)
//   - directory-only patterns (build/)
//   - one matcher per directory, so nested .gitignore files layer correctly
//
// A Matcher is safe for concurrent reads once built; AddPattern mutates it
// in place so callers typically build one per directory and then share it
// read-only across scanner workers.
package gitignore
