// Copyright 2025 The Crewline Authors. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

/*
Package metrics provides Prometheus-based metrics collection across the
run, task, tool, LLM, cache and persistence dimensions of the engine.

# Overview

The package registers all metrics through a single Collector using the
promauto factory bound to a caller-supplied Registerer, so tests can
isolate themselves with their own registry. Metrics are grouped under a
namespace and labeled for dashboard breakdowns.

# Core types

  - Collector: holds the Counter and Histogram vectors, grouped by
    engine concern. Record methods are nil-receiver safe, making the
    whole subsystem optional.

# Dimensions

  - Run metrics: total runs and run duration by terminal status.
  - Task metrics: executions by agent and state, duration, and the
    reasoning iterations consumed per task.
  - Tool metrics: invocation counts by tool and outcome, duration.
  - LLM metrics: request counts, latency, and token usage split into
    prompt and completion, by provider and model.
  - Cache metrics: hit and miss counts by cache type.
  - Persistence metrics: history store and output sink write outcomes.
*/
package metrics
