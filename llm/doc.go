// Copyright 2025 The Crewline Authors. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

/*
Package llm is the chat-completions access layer: the Provider
abstraction, the resilient wrapper, the run-scoped tool-result cache,
token counting and credential rotation.

# Overview

The package hides what a concrete backend looks like on the wire. Agents
talk to [Provider] and get back complete responses with normalized
errors; which vendor answered, how requests were throttled, and which
API key authenticated them is decided here.

# Core pieces

  - [Provider]: Completion / HealthCheck / Name /
    SupportsNativeFunctionCalling, the whole surface a backend must offer
  - [ResilientProvider]: local rate limiting plus error normalization
    around any Provider
  - [Error]: structured backend error with a code and a retryability flag
  - [ToolCache]: run-scoped result cache, in-process LRU with an optional
    Redis tier
  - [KeyPool]: database-backed credential rotation with health scoring

Concrete backends live in llm/providers; tool execution lives in
llm/tools.
*/
package llm
