// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the configuration of a link endpoint.
//
// Configuration is loaded from a single file specified by either the
// DCPS_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. The file is YAML (.yaml, .yml) or JSON with comments and
// trailing commas (.json, .jsonc).
//
// Link timings are integer milliseconds, matching the reliable TCP
// link's configuration inputs; [Milliseconds] converts them.
//
// The file may contain environment-specific sections (development,
// staging, production) whose link and cache settings override the base
// values when [Config].Environment matches. ${VAR} and ${VAR:-default}
// are expanded in address fields after loading.
//
// This package depends on no other packages of this module; callers
// translate a [Config] into transport and access settings.
package config
