// Package configs provides embedded configuration templates for ragit.
//
// Templates are embedded at build time using Go's //go:embed directive so
// they are available in source builds and binary releases alike.
//
// Configuration files (loaded by internal/config):
//  1. Hardcoded defaults (internal/config.DefaultUserConfig(),
//     DefaultProjectConfig() and the Default*Config() per-KB constructors)
//  2. User config (~/.config/ragit/config.yaml, LoadUserConfig())
//  3. Project config (.ragit.yaml, LoadProjectConfig())
//  4. Per-KB JSON documents (configs/{api,build,query}.json under .ragit/)
package configs

import _ "embed"

// UserConfigTemplate is the embedded example for
// ~/.config/ragit/config.yaml. Holds machine-level defaults (LLM endpoint,
// offline mode, UI preferences). No command in this module writes it to
// disk.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the embedded example for .ragit.yaml at the
// knowledge base root. Holds project-specific settings (path excludes,
// search weights, submodules) kept under version control alongside the
// project. `ragit init` does not write it.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
