// Package database opens the SQLite file behind the audit trail and applies
// the embedded schema migrations.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are named YYYYMMDD_HHMMSS_description.up.sql with an optional
// .down.sql. They are additive: new columns are nullable or defaulted.
// All queries elsewhere use parameterised statements.
package database
