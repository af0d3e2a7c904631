package source

import (
	"context"
	"fmt"
	"sort"

	"github.com/newsroom-engine/internal/models"
)

// TrendSource defines the interface for trend discovery sources
type TrendSource interface {
	// Name returns the unique name of this source
	Name() string

	// Type returns the source type (trends, rss, youtube, static)
	Type() string

	// Fetch retrieves trend items from the source
	Fetch(ctx context.Context) ([]models.TrendItem, error)

	// HealthCheck verifies the source is accessible
	HealthCheck(ctx context.Context) error
}

// FetchError names the source that failed
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string { return e.Source + ": " + e.Err.Error() }

func (e *FetchError) Unwrap() error { return e.Err }

// Manager manages multiple trend sources
type Manager struct {
	sources []TrendSource
}

// NewManager creates a new source manager
func NewManager() *Manager {
	return &Manager{
		sources: make([]TrendSource, 0),
	}
}

// Register adds a source to the manager
func (m *Manager) Register(source TrendSource) {
	m.sources = append(m.sources, source)
}

// GetSources returns all registered sources
func (m *Manager) GetSources() []TrendSource {
	return m.sources
}

// GetSourceByName returns a source by name
func (m *Manager) GetSourceByName(name string) TrendSource {
	for _, s := range m.sources {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// Names lists registered source names, sorted
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.sources))
	for _, s := range m.sources {
		names = append(names, s.Name())
	}
	sort.Strings(names)
	return names
}

// FetchAll fetches items from all sources concurrently. A failing source never
// prevents the others from contributing.
func (m *Manager) FetchAll(ctx context.Context) ([]models.TrendItem, []error) {
	return fetch(ctx, m.sources)
}

// FetchOne fetches a single registered source
func (m *Manager) FetchOne(ctx context.Context, name string) ([]models.TrendItem, error) {
	s := m.GetSourceByName(name)
	if s == nil {
		return nil, fmt.Errorf("source not found: %s", name)
	}
	items, errs := fetch(ctx, []TrendSource{s})
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return items, nil
}

func fetch(ctx context.Context, sources []TrendSource) ([]models.TrendItem, []error) {
	type result struct {
		index int
		items []models.TrendItem
		err   error
	}

	results := make(chan result, len(sources))

	for i, src := range sources {
		go func(i int, s TrendSource) {
			items, err := s.Fetch(ctx)
			if err != nil {
				err = &FetchError{Source: s.Name(), Err: err}
			}
			results <- result{index: i, items: items, err: err}
		}(i, src)
	}

	// Keep registration order so runs over the same feeds are reproducible
	collected := make([]result, len(sources))
	for range sources {
		r := <-results
		collected[r.index] = r
	}

	var allItems []models.TrendItem
	var errs []error
	for _, r := range collected {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		allItems = append(allItems, r.items...)
	}

	return allItems, errs
}
