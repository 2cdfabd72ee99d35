// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the nativebridge
// process.
//
// Configuration comes from at most one file, named by the --config flag
// or the NATIVEBRIDGE_CONFIG environment variable (via [Load]). Without
// either, [Default] is used unchanged. There is no automatic file
// search, so the effective configuration is always the defaults plus
// exactly one file.
//
// Files ending in .json or .jsonc are read as JSON with comments and
// trailing commas; everything else is YAML. Unknown keys are rejected in
// both formats so that a misspelled key fails loudly instead of being
// ignored.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${NATIVEBRIDGE_DATA_DIR}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- top-level struct with Server, Relay, Boundary, Log
//   - [Default] -- a Config with every field populated
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- range and format checks
//
// This package depends on no other nativebridge packages.
package config
