// Copyright 2025 The Crewline Authors. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

/*
Package main is the crewline executable.

# Overview

cmd/crewline runs pipelines from the command line and carries the
operational chores around them: run-history schema migrations, health
probes against the configured collaborators, and version reporting.
Configuration layers defaults, an optional YAML file and CREWLINE_*
environment variables.

# Subcommands

  - run: execute a pipeline file (or the built-in equity research
    pipeline) with --input variables; optionally exposes a Prometheus
    scrape endpoint and a /healthz probe while the run is live
  - migrate: golang-migrate driven schema management for the
    run-history database (up, down, status, version, info, force)
  - health: concurrent probes of the LLM backend, Redis and the
    history database
  - version: build metadata injected via -ldflags

# Notes

The run command wires the engine through the root crewline package, so
a scripted pipeline behaves identically whether launched here or
embedded in another program.
*/
package main
