package cmd

import (
	"fmt"

	"github.com/wesm/chanvault/internal/config"
	"github.com/wesm/chanvault/internal/query"
	"github.com/wesm/chanvault/internal/schema"
	"github.com/wesm/chanvault/internal/store"
)

// searchStack is the set of components behind every search surface.
type searchStack struct {
	store    *store.Store
	backend  *query.Backend
	registry *schema.Registry
	searcher *query.Searcher
	reader   *query.Reader
}

// openLocalStore opens the SQLite archive and makes sure the message table
// exists.
func openLocalStore() (*store.Store, error) {
	dbPath := cfg.DatabasePath()
	s, err := store.Open(dbPath, cfg.Store.Table)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// openSearchStack wires store, backend, schema registry, searcher and
// reader from the loaded config. The backend is SQLite unless [store]
// backend selects DuckDB, which reads the same archive through its sqlite
// extension.
func openSearchStack() (*searchStack, error) {
	s, err := openLocalStore()
	if err != nil {
		return nil, err
	}

	var backend *query.Backend
	switch cfg.Store.Backend {
	case config.BackendDuckDB:
		backend, err = query.OpenDuckDB(cfg.DatabasePath(), cfg.Store.Table)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open duckdb backend: %w", err)
		}
	default:
		backend = query.NewSQLiteBackend(s.DB(), cfg.Store.Table)
	}
	backend = backend.WithLogger(logger).WithTimeout(cfg.QueryTimeout())

	tracker := schema.NewTracker(backend).WithLogger(logger)
	registry := schema.NewRegistry(backend, tracker).
		WithLogger(logger).
		WithInterval(cfg.SchemaRefreshInterval()).
		WithTimeout(cfg.QueryTimeout())
	searcher := query.NewSearcher(registry, backend).
		WithLogger(logger).
		WithMaxLimit(cfg.Search.MaxLimit).
		WithRowCap(cfg.Search.WindowRowCap)
	reader := query.NewReader(registry, backend).WithLogger(logger)

	logger.Debug("search stack ready",
		"backend", backend.Name(),
		"table", cfg.Store.Table,
		"path", cfg.DatabasePath())

	return &searchStack{store: s, backend: backend, registry: registry, searcher: searcher, reader: reader}, nil
}

// Close releases the backend and the store.
func (st *searchStack) Close() error {
	berr := st.backend.Close()
	serr := st.store.Close()
	if berr != nil {
		return berr
	}
	return serr
}
