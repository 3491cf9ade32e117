// Package database opens the lcdcanvas SQLite store and applies its schema.
//
// The store is small: per-screen settings and a key/value table of monitor
// settings. It is opened with WAL journaling and a single connection, which
// is all a one-writer embedded service needs.
//
// Migrations are plain SQL files named YYYYMMDD_HHMMSS_description.up.sql
// (with an optional matching .down.sql) read from an fs.FS, normally the
// embedded one in the top-level migrations package:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
