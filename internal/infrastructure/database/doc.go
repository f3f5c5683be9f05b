// Package database provides the SQLite connection used by the property
// store.
//
// It opens the database in WAL mode with a busy timeout and applies
// versioned migrations read from an fs.FS, normally the embedded
// migrations package:
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
//
// Migrations are additive: new columns are nullable or carry defaults,
// and every .up.sql has a matching .down.sql that operators run by hand
// to roll a release back.
package database
