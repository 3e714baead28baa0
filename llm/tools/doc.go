// Copyright 2025 The Crewline Authors. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

/*
Package tools executes the functions agents call: a registry keyed by
tool name, an executor that contains every failure, and the built-in
market-data tools.

A tool is a plain Go function behind [ToolFunc]. The executor validates
arguments, applies the per-tool timeout and rate limit, recovers panics,
and reports failures inside [ToolResult] instead of returning errors,
so a broken tool becomes an observation the agent can react to rather
than the end of the task.
*/
package tools
