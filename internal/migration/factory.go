package migration

import (
	"fmt"

	appconfig "github.com/crewline/crewline/config"
)

// NewMigratorFromHistoryConfig builds a migrator for the configured
// history store. The memory driver keeps no schema and is rejected.
func NewMigratorFromHistoryConfig(cfg appconfig.HistoryConfig) (*DefaultMigrator, error) {
	if cfg.Driver == "memory" {
		return nil, fmt.Errorf("history driver %q keeps no schema; nothing to migrate", cfg.Driver)
	}

	dbType, err := ParseDatabaseType(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid history driver: %w", err)
	}

	var dbURL string
	switch dbType {
	case DatabaseTypePostgres:
		dbURL = BuildDatabaseURL(dbType, cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password, cfg.SSLMode)
	case DatabaseTypeMySQL:
		dbURL = BuildDatabaseURL(dbType, cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password, "")
	case DatabaseTypeSQLite:
		// Name carries the file path for sqlite.
		dbURL = BuildDatabaseURL(dbType, "", 0, cfg.Name, "", "", "")
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  dbURL,
	})
}

// NewMigratorFromURL builds a migrator from an explicit driver name
// and connection URL.
func NewMigratorFromURL(driver, dbURL string) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(driver)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  dbURL,
	})
}
