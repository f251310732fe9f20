// Package database provides SQLite connectivity for the Arylic gateway.
//
// The gateway stores only the speakers it has successfully talked to, so
// they are reconnected after a restart even when mDNS is slow or disabled.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded schema migrations (see the top-level migrations package)
//   - Connection lifecycle management
//
// Usage:
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration Strategy:
//
// Migrations live in the Migrations filesystem as
// YYYYMMDD_HHMMSS_description.up.sql with an optional matching .down.sql.
// They are applied in version order, each in its own transaction, and
// recorded in schema_migrations. MigrationStatus and MigrateDown back the
// "arylicgw migrate" subcommands.
package database
