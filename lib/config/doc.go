// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for compilecrac.
//
// Configuration is loaded from a single file specified by either the
// COMPILECRAC_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks and no automatic file
// search. Without a file, commands run on [Default] plus flags.
//
// The file is YAML (.yaml, .yml) or JSONC (.json, .jsonc: JSON with
// comments and trailing commas), chosen by extension.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production without an explicit
// section disables the tool echo line.
//
// Path fields are expanded after loading: ${HOME} and ${VAR:-default}
// patterns. No other environment variables override config values;
// command-line flags override fields after loading.
//
// This package depends on no other compilecrac packages.
package config
