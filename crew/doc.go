// Copyright 2025 The Crewline Authors. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

/*
Package crew sequences agents through a declared list of tasks.

# Overview

A Crew owns an ordered task list. Run substitutes the caller's input
variables into every task template up front, then executes the tasks in
declared order, feeding each task the outputs of the earlier tasks it
names in its Context list. The final task's output is the run's output.

# Failure policy

Validation failures (unknown context references, duplicate task ids,
unbound placeholders) abort the run before any task executes. Once
execution starts, nothing short of context cancellation stops it: a
struggling task finishes in the degraded state with a best-effort
answer, its output still flows downstream with a degraded marker, and
sink or history write failures are logged and counted but never abort
the run.

# Observability

Runs are recorded through history.Store, task outputs through
artifacts.Sink, and counters and latencies through metrics.Collector.
All three are optional.
*/
package crew
