package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroom-engine/internal/models"
)

type stubSource struct {
	name  string
	items []models.TrendItem
	err   error
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) Type() string { return "stub" }
func (s *stubSource) Fetch(context.Context) ([]models.TrendItem, error) {
	return s.items, s.err
}
func (s *stubSource) HealthCheck(context.Context) error { return nil }

func TestManager_FetchAll(t *testing.T) {
	m := NewManager()
	m.Register(&stubSource{name: "a", items: []models.TrendItem{{Title: "a1"}, {Title: "a2"}}})
	m.Register(&stubSource{name: "broken", err: errors.New("timeout")})
	m.Register(&stubSource{name: "b", items: []models.TrendItem{{Title: "b1"}}})

	items, errs := m.FetchAll(context.Background())

	require.Len(t, items, 3)
	// Registration order is preserved
	assert.Equal(t, "a1", items[0].Title)
	assert.Equal(t, "b1", items[2].Title)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "broken")
}

func TestManager_FetchOne(t *testing.T) {
	m := NewManager()
	m.Register(&stubSource{name: "a", items: []models.TrendItem{{Title: "a1"}}})

	items, err := m.FetchOne(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = m.FetchOne(context.Background(), "missing")
	assert.Error(t, err)

	assert.Equal(t, []string{"a"}, m.Names())
}
