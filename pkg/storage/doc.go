/*
Package storage persists launched cubes in a BoltDB file.

Each hypernet CLI invocation is a separate process: "hypernet up" launches the
nodes and exits, and later "query", "flood" or "down" invocations need the
addresses and process ids it chose. The Store keeps one JSON-encoded
types.Cube per name in the "cubes" bucket of <data-dir>/hypernet.db.

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	cube, err := store.GetCube("default")
	if errors.Is(err, storage.ErrNotFound) {
		// nothing running
	}

BoltDB takes an exclusive file lock, so only one CLI invocation can hold the
store open at a time.
*/
package storage
