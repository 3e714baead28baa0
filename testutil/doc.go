// Copyright 2025 The Crewline Authors. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

/*
Package testutil provides shared helpers for the engine's tests.

# Core helpers

  - ScriptedProvider: an llm.Provider that replays a fixed sequence of
    turns (text answers, tool calls, injected errors) and records every
    request it receives, so tests can assert on the exact transcript an
    agent sent.
  - RecordingSink: an artifacts.Sink that captures writes in memory and
    can be told to fail, for exercising the non-fatal sink policy.
  - Context and JSON helpers shared across package tests.
*/
package testutil
