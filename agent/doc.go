// Copyright 2025 The Crewline Authors. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

/*
Package agent implements the reasoning worker of the engine: a persona
bound to an LLM backend and a set of tools, executing one task at a time
through a bounded think/act loop.

# Overview

An Agent is configured once with a Role (name, goal, backstory), a
provider, an optional tool registry, and an iteration budget. Execute
takes a fully substituted task description plus the context produced by
earlier tasks, runs up to MaxIterations rounds of completion and tool
dispatch, and always returns a usable Result.

# Failure policy

Execute returns a Go error only when the context is cancelled.
Everything else folds into the Result:

  - A tool failure (unknown tool, invalid arguments, timeout, tool
    error) becomes an error observation in the transcript and the loop
    continues.
  - A backend failure or malformed response is retried once with a
    clarifying instruction appended; a second failure degrades the task.
  - Exhausting the iteration budget degrades the task, synthesizing an
    answer from the observations gathered so far plus an explicit note.

Degraded results set Result.Degraded and carry the reason, so the
scheduler can flag the output for downstream consumers.
*/
package agent
