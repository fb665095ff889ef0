// Package storage persists materialized grids into relational databases.
//
// Backends register themselves under a kind string ("sqlite", "postgres",
// "mssql") from an init function; the application selects one through Config.
// The interface is intentionally minimal: the dashboard only ever creates a
// destination table and bulk-inserts typed rows into it.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gridchat/internal/schema"
)

// Config selects and connects a backend.
//
// Kind must match a registered backend kind. DSN is passed through to the
// backend factory; its format is backend-specific.
type Config struct {
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

// TableSpec describes the destination table for one dataset.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

// ColumnSpec carries the inferred type so each backend can map it onto its
// own DDL vocabulary.
type ColumnSpec struct {
	Name string
	Type schema.ColumnType
}

// Repository is the backend-agnostic persistence surface.
type Repository interface {
	// Close releases connections. Treat as "call once" at shutdown.
	Close()

	// EnsureTable creates the destination table if it does not exist.
	// Re-running an ingest against the same table must not fail here.
	EnsureTable(ctx context.Context, spec TableSpec) error

	// InsertRows bulk-inserts rows into table. Every row must have one value
	// per column, in column order; nil values become SQL NULL. Returns the
	// number of rows written.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind. Call from an init function in
// the backend package.
//
// Panics on empty kind, nil factory, or duplicate registration; backend
// selection must never be ambiguous.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered factory for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%q (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
