// Copyright 2025 The Crewline Authors. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

/*
Package database manages the GORM connection pool behind the history
store, with health checking, stats collection and transaction retry.

# Overview

PoolManager wraps a GORM handle and its underlying sql.DB, owning the
pool limits, idle reclamation and connection lifetime. An optional
background health check pings the database on an interval and logs
connection stats through zap.

# Core types

  - PoolManager: holds the GORM DB and the raw sql.DB, with DB(),
    Ping(), Stats() and Close() lifecycle methods.
  - PoolConfig: idle and open connection limits, connection lifetimes
    and the health check interval.
  - PoolStats: pool runtime counters in a report-friendly shape.
  - TransactionFunc: callback type for transactional work.

# Capabilities

  - Pool tuning through MaxIdleConns, MaxOpenConns and ConnMaxLifetime.
  - Background liveness checks via PingContext.
  - WithTransaction for single-shot transactions and
    WithTransactionRetry with exponential backoff for deadlocks and
    serialization failures.
*/
package database
