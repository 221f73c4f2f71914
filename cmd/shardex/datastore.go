package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/praetorian-inc/shardex/pkg/datastore"
	"github.com/praetorian-inc/shardex/pkg/store"
	"github.com/praetorian-inc/shardex/pkg/types"
)

// openDatastore opens a datastore that a previous extract created.
func openDatastore(path, dsn string) (*datastore.Datastore, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: datastore %s", types.ErrInputNotFound, path)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: datastore %s is not a directory", types.ErrInputNotReadable, path)
	}
	ds, err := datastore.Open(path, datastore.Options{IndexDSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("opening datastore: %w", err)
	}
	return ds, nil
}

// selectRun returns the run with the given ID, or the latest run when id is
// empty.
func selectRun(ds *datastore.Datastore, id string) (*store.Run, error) {
	if id != "" {
		run, err := ds.Store.GetRun(id)
		if errors.Is(err, store.ErrRunNotFound) {
			return nil, fmt.Errorf("%w: run %s", types.ErrInputNotFound, id)
		}
		return run, err
	}

	runs, err := ds.Store.GetRuns()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: datastore %s has no runs", types.ErrInputNotFound, ds.Path)
	}
	return runs[len(runs)-1], nil
}
