package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/ratelimit"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "mostPopular", q.Get("chart"))
		assert.Equal(t, "28", q.Get("videoCategoryId"))
		assert.Equal(t, "test-key", q.Get("key"))

		w.Header().Set("Content-Type", "application/json")
		switch q.Get("regionCode") {
		case "US":
			_, _ = w.Write([]byte(`{"items":[
				{"id":"vid1","snippet":{"title":" New phone review ","channelTitle":"TechTube","publishedAt":"2026-10-01T10:00:00Z"}},
				{"id":"","snippet":{"title":"no id"}},
				{"id":"vid2","snippet":{"title":"Laptop teardown"}}
			]}`))
		default:
			http.Error(w, `{"error":{"code":403,"message":"quota"}}`, http.StatusForbidden)
		}
	}))
	defer srv.Close()

	s, err := New(context.Background(), config.YouTubeConfig{
		APIKey:     "test-key",
		Regions:    []string{"US", "GB"},
		CategoryID: "28",
		MaxResults: 5,
	}, ratelimit.NewDefaultLimiter(), logger.Nop(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	items, err := s.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "New phone review", items[0].Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid1", items[0].URL)
	assert.Equal(t, "TechTube", items[0].SourceLabel)
	assert.Equal(t, models.SourceKindYouTube, items[0].Kind)
	assert.Equal(t, 2026, items[0].PublishedAt.Year())

	assert.Equal(t, "youtube-us", items[1].SourceLabel)
}

func TestFetch_AllRegionsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":500,"message":"down"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := New(context.Background(), config.YouTubeConfig{APIKey: "k", Regions: []string{"US"}},
		ratelimit.NewDefaultLimiter(), logger.Nop(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	_, err = s.Fetch(context.Background())
	assert.Error(t, err)
}
