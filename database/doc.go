// Package database opens and disposes the ephemeral SQLite stores that back
// mock scopes.
//
// Each store is a database file in its own temporary directory, opened
// through GORM with foreign keys enforced and a single pooled connection.
// The package also classifies engine integrity errors and inspects
// schema objects (tables, indexes, partial index predicates).
//
//	db, err := database.Open(ctx, database.Config{}, log)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
package database
