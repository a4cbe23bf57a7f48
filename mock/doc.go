// Package mock runs code against mock database rows that exist only for
// the duration of a scope.
//
// A Provider owns one ephemeral SQLite store. A DBMock opens scopes on it:
// the outermost scope creates the schema from the registered models,
// begins a transaction and applies registered patches; every scope places
// a savepoint, inserts its rows and rolls back to the savepoint when it
// closes. Closing the outermost scope also disposes of the store.
//
// # Mock data
//
// Rows come from a Dataset (table name to column maps), from model objects
// with their associations, or from a JSON or YAML file with the same shape
// as a Dataset:
//
//	human:
//	  - name: John
//	pet:
//	  - name: Milo
//	    species: DOG
//
// Parent tables are inserted before the tables that reference them, and
// generated keys are copied into foreign keys of related objects.
//
// # Usage
//
//	data, err := mock.NewDataInterface(petapp.Models())
//	if err != nil {
//	    return err
//	}
//	m := mock.New(mock.NewProvider(database.Config{}, log), data)
//	m.Patches().AddPatch(mock.Value(&petapp.OpenSession, m.Session))
//
//	err = m.FromDict(ctx, mock.Dataset{"pet": {{"name": "Milo", "species": "DOG"}}},
//	    func(ctx context.Context, r *mock.Result) error {
//	        pets, err := petapp.QueryPets(ctx)
//	        ...
//	    })
//
// AsyncDBMock offers the same API over an AsyncProvider, which runs every
// store operation on one owner goroutine so callers can give up waiting
// through their context.
package mock
