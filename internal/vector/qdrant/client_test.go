package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/ratelimit"
)

func newTestClient(url string) *Client {
	return NewClient(config.QdrantConfig{URL: url + "/", APIKey: "k", Collection: "topics"},
		ratelimit.NewDefaultLimiter(), logger.Nop())
}

func TestEnsureCollection_CreatesWhenMissing(t *testing.T) {
	var created map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("api-key"))
		assert.Equal(t, "/collections/topics", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
		}
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).EnsureCollection(context.Background(), 1536))
	vectors := created["vectors"].(map[string]interface{})
	assert.Equal(t, float64(1536), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestEnsureCollection_Exists(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"result":{"status":"green"}}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).EnsureCollection(context.Background(), 3))
	assert.Equal(t, 1, calls)
}

func TestEnsureCollection_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.Error(t, newTestClient(srv.URL).EnsureCollection(context.Background(), 3))
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/collections/topics/points/search", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(3), body["limit"])
		assert.Equal(t, 0.8, body["score_threshold"])
		assert.Equal(t, true, body["with_payload"])

		_, _ = w.Write([]byte(`{"result":[
			{"id":"0b6c4a52-1b1e-4a8e-9d4d-3f1f7a1f2a11","score":0.93,"payload":{"slug":"gpu-launch","title":"GPU launch"}},
			{"id":17,"score":0.81,"payload":{}}
		],"status":"ok"}`))
	}))
	defer srv.Close()

	hits, err := newTestClient(srv.URL).Search(context.Background(), []float32{0.1, 0.2}, 3, 0.8)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "0b6c4a52-1b1e-4a8e-9d4d-3f1f7a1f2a11", hits[0].ID)
	assert.Equal(t, "gpu-launch", hits[0].PayloadString("slug"))
	assert.InDelta(t, 0.93, hits[0].Score, 1e-9)
	assert.Equal(t, "17", hits[1].ID)
}

func TestUpsert(t *testing.T) {
	var body struct {
		Points []struct {
			ID      string                 `json:"id"`
			Vector  []float32              `json:"vector"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"points"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/collections/topics/points", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Upsert(context.Background(), "abc", []float32{1, 0}, map[string]interface{}{"slug": "s"})
	require.NoError(t, err)
	require.Len(t, body.Points, 1)
	assert.Equal(t, "abc", body.Points[0].ID)
	assert.Equal(t, []float32{1, 0}, body.Points[0].Vector)
	assert.Equal(t, "s", body.Points[0].Payload["slug"])
}

func TestUpsert_BadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "wrong dimension", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Upsert(context.Background(), "abc", []float32{1}, nil)
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
}
