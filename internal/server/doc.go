// Copyright 2025 The Crewline Authors. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

/*
Package server manages the lifecycle of the operational HTTP endpoint
that runs beside a pipeline: Prometheus scrapes and liveness probes.

# Overview

Manager wraps net/http.Server with non-blocking startup, asynchronous
error reporting, and graceful shutdown. Start and StartTLS bind the
listener and serve in the background; Shutdown drains in-flight
requests within the configured timeout; WaitForShutdown ties the server
to SIGINT/SIGTERM for long-lived processes.

The handler is supplied by the caller, so the package stays free of
routing decisions.
*/
package server
