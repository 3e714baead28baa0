// Copyright 2025 The Crewline Authors. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

/*
Package migration versions the run-history schema with golang-migrate.

Per-dialect SQL files (postgres, mysql, sqlite) are embedded with
embed.FS, so a crewline binary can migrate any configured history
database without shipping loose files. The sqlite path uses the pure-Go
modernc driver and needs no cgo.

Migrator exposes Up, Down, Force, Version, Status and Info; CLI wraps
it with formatted output for the crewline migrate subcommand. Factory
helpers build a Migrator straight from config.HistoryConfig or from an
explicit driver/URL pair.
*/
package migration
