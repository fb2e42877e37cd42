package pdpm

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hfjohn123/Anthuria-sub001/internal/metrics"
)

// Store holds the live registry. Readers never block; a reload replaces the registry
// only after the new table set has validated.
type Store struct {
	current atomic.Pointer[Registry]
	logger  *zap.Logger
}

// NewStore creates a store serving initial
func NewStore(initial *Registry, logger *zap.Logger) *Store {
	s := &Store{logger: logger}
	s.current.Store(initial)
	metrics.TablesLoaded.Set(float64(initial.Len()))
	return s
}

// Registry returns the live registry
func (s *Store) Registry() *Registry {
	return s.current.Load()
}

// Swap installs r as the live registry
func (s *Store) Swap(r *Registry) {
	prev := s.current.Swap(r)
	metrics.TablesLoaded.Set(float64(r.Len()))
	s.logger.Info("Category tables swapped",
		zap.String("source", r.Source()),
		zap.String("previous_source", prev.Source()),
		zap.Int("tables", r.Len()),
	)
}

// Reload merges override tables from a config map over the built-in tables and swaps
// the result in. On error the live registry is left untouched.
func (s *Store) Reload(source string, m map[string]interface{}) error {
	tables, err := TablesFromMap(m)
	if err == nil {
		var r *Registry
		r, err = DefaultRegistry().Merge(source, tables)
		if err == nil {
			s.Swap(r)
			metrics.TableReloads.WithLabelValues("applied").Inc()
			return nil
		}
	}
	metrics.TableReloads.WithLabelValues("rejected").Inc()
	s.logger.Warn("Rejected category table reload, keeping previous tables",
		zap.String("source", source),
		zap.Error(err),
	)
	return fmt.Errorf("reload tables from %s: %w", source, err)
}

// Reset restores the built-in tables, e.g. after the override file was removed
func (s *Store) Reset() {
	s.Swap(DefaultRegistry())
}
