package search

import (
	"context"
	"fmt"
	"sync"
)

// DatabaseReport is one database's outcome within a cross-database
// search: either a report or an error, never both.
type DatabaseReport struct {
	DatabasePath string
	Report       *SearchReport
	Err          error
}

// CrossDatabaseResult bundles per-database outcomes. The call only
// fails outright when every database failed; otherwise callers get
// whatever succeeded plus a status map for the rest.
type CrossDatabaseResult struct {
	Succeeded []DatabaseReport
	Failed    []DatabaseReport
}

// EngineFor resolves a search Engine for a given database path; the
// caller supplies this since engine construction requires an open
// handle and an embedder bound to that handle's worker configuration.
type EngineFor func(ctx context.Context, databasePath string) (*Engine, error)

// SearchAcrossDatabases runs the same query against every named
// database concurrently, using resolve to obtain each database's
// Engine. If every database fails, the call returns an error; if at
// least one succeeds, partial results are returned with the failures
// reported alongside.
func SearchAcrossDatabases(ctx context.Context, databasePaths []string, query string, opts Options, resolve EngineFor) (*CrossDatabaseResult, error) {
	if len(databasePaths) == 0 {
		return &CrossDatabaseResult{}, nil
	}

	reports := make([]DatabaseReport, len(databasePaths))
	var wg sync.WaitGroup
	for i, path := range databasePaths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			reports[i] = searchOneDatabase(ctx, path, query, opts, resolve)
		}(i, path)
	}
	wg.Wait()

	result := &CrossDatabaseResult{}
	for _, r := range reports {
		if r.Err != nil {
			result.Failed = append(result.Failed, r)
		} else {
			result.Succeeded = append(result.Succeeded, r)
		}
	}

	if len(result.Succeeded) == 0 {
		return nil, fmt.Errorf("search: all %d databases failed; first error: %w", len(result.Failed), firstErr(result.Failed))
	}
	return result, nil
}

func searchOneDatabase(ctx context.Context, path, query string, opts Options, resolve EngineFor) DatabaseReport {
	engine, err := resolve(ctx, path)
	if err != nil {
		return DatabaseReport{DatabasePath: path, Err: fmt.Errorf("resolve %s: %w", path, err)}
	}
	report, err := engine.Search(ctx, query, opts)
	if err != nil {
		return DatabaseReport{DatabasePath: path, Err: fmt.Errorf("search %s: %w", path, err)}
	}
	return DatabaseReport{DatabasePath: path, Report: report}
}

func firstErr(failed []DatabaseReport) error {
	if len(failed) == 0 {
		return nil
	}
	return failed[0].Err
}
