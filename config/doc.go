// Copyright 2025 The Crewline Authors. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package config loads engine configuration from defaults, an optional
// YAML file, and CREWLINE_-prefixed environment variables, in that
// order of precedence.
package config
