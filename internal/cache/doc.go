// Copyright 2025 The Crewline Authors. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

/*
Package cache manages the Redis connection backing the distributed tier
of the tool-result cache.

# Overview

The Manager owns a single go-redis client for the process: it connects
eagerly, verifies the connection with a ping, optionally re-pings on an
interval, and hands the client out to cache construction. Closing the
Manager releases the pool.

Redis stays optional throughout the engine. When the Redis tier is
disabled the tool cache runs on its in-process LRU alone and this
package is never touched.
*/
package cache
