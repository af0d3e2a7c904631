package discovery

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroom-engine/internal/apperr"
	"github.com/newsroom-engine/internal/dedup"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/source"
	"github.com/newsroom-engine/internal/storage"
	"github.com/newsroom-engine/internal/storage/gormrepo"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/retry"
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

type fakeClusterer struct {
	clusters  []models.Cluster
	err       error
	calls     int
	onCluster func()
}

func (f *fakeClusterer) Cluster(_ context.Context, _ []models.TrendItem) ([]models.Cluster, error) {
	f.calls++
	if f.onCluster != nil {
		f.onCluster()
	}
	return f.clusters, f.err
}

type recorder struct {
	mu      sync.Mutex
	entries []*models.AuditLogEntry
}

func (r *recorder) Record(entry *models.AuditLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recorder) actions() []models.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func (r *recorder) last() *models.AuditLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[len(r.entries)-1]
}

var fastRetry = retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

var feedItems = []models.TrendItem{
	{Title: "New GPU announced", URL: "https://news.example.com/gpu?utm_source=x", SourceLabel: "Example News", Kind: models.SourceKindNews},
	{Title: "GPU benchmarks leak", URL: "https://blog.example.com/gpu-bench", SourceLabel: "Bench Blog", Kind: models.SourceKindBlog},
	{Title: "Phone X review", URL: "https://www.youtube.com/watch?v=phone1", SourceLabel: "Tech Tube", Kind: models.SourceKindYouTube},
	{Title: "Gardening tips", URL: "https://garden.example.com/tips", SourceLabel: "Garden"},
}

var feedClusters = []models.Cluster{
	{
		MasterTitle: "NextGen GPU launch",
		Children: []models.ClusterChild{
			{Title: "New GPU announced", URL: "https://news.example.com/gpu"},
			{Title: "GPU benchmarks leak", URL: "https://blog.example.com/gpu-bench", Kind: models.SourceKindBlog},
			{Title: "Invented by the model", URL: "https://unknown.example.com/x"},
		},
	},
	{
		MasterTitle: "Phone X review",
		Children: []models.ClusterChild{
			{Title: "Phone X review", URL: "https://www.youtube.com/watch?v=phone1", ContentType: models.ContentTypeReview},
		},
	},
	{MasterTitle: "   ", Children: []models.ClusterChild{{URL: "https://garden.example.com/tips"}}},
}

type harness struct {
	agent     *Agent
	repo      *gormrepo.Repository
	clusterer *fakeClusterer
	audit     *recorder
	sources   *source.Manager
}

func newHarness(t *testing.T, srcs ...source.TrendSource) *harness {
	t.Helper()
	repo, err := gormrepo.New("sqlite", filepath.Join(t.TempDir(), "discovery.db"))
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { _ = repo.Close() })

	manager := source.NewManager()
	for _, s := range srcs {
		manager.Register(s)
	}

	h := &harness{
		repo:      repo,
		clusterer: &fakeClusterer{clusters: feedClusters},
		audit:     &recorder{},
		sources:   manager,
	}
	index := dedup.NewIndex(repo, nil, nil, nil, dedup.Options{Retry: fastRetry}, logger.Nop())
	h.agent = NewAgent(Deps{
		Sources:   manager,
		Clusterer: h.clusterer,
		Index:     index,
		Repo:      repo,
		Audit:     h.audit,
		Retry:     fastRetry,
	}, logger.Nop())
	return h
}

func TestRun_CreatesTopicsAndSources(t *testing.T) {
	h := newHarness(t, &stubSource{name: "feed", items: feedItems})
	ctx := context.Background()

	result, err := h.agent.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Fetched)
	assert.Equal(t, 0, result.DuplicatesSkipped)
	assert.Equal(t, 3, result.Clusters)
	assert.Equal(t, 1, result.ClustersSkipped)
	assert.Equal(t, 2, result.TopicsCreated)
	assert.Equal(t, 0, result.TopicsReused)
	assert.Equal(t, 3, result.SourcesAdded)
	assert.Empty(t, result.ErrorMessage)
	require.Len(t, result.Topics, 2)

	gpu, err := h.repo.GetTopicBySlug(ctx, "nextgen-gpu-launch")
	require.NoError(t, err)
	assert.Equal(t, models.TopicStatusNew, gpu.Status)
	assert.NotEmpty(t, gpu.ExternalID)

	loaded, err := h.repo.GetTopic(ctx, gpu.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Sources, 2)
	for _, s := range loaded.Sources {
		assert.False(t, s.Approved)
		assert.Equal(t, dedup.HashURL(s.URL), s.URLHash)
	}

	assert.Equal(t, []models.AuditAction{
		models.AuditTopicCreated,
		models.AuditTopicCreated,
		models.AuditDiscoveryRun,
	}, h.audit.actions())
	run := h.audit.last()
	assert.Equal(t, models.AuditSuccess, run.Meta.Status)
	assert.Equal(t, 2, run.Meta.Counts["topics_created"])
	assert.Equal(t, 4, run.Meta.Counts["fetched"])
}

func TestRun_SecondRunReusesTopics(t *testing.T) {
	h := newHarness(t, &stubSource{name: "feed", items: feedItems[:3]})
	ctx := context.Background()

	first, err := h.agent.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, first.TopicsCreated)

	second, err := h.agent.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.TopicsCreated)
	assert.Equal(t, first.TopicsCreated, second.TopicsReused)
	assert.Equal(t, 3, second.DuplicatesSkipped)
	assert.Equal(t, 0, second.SourcesAdded)
	assert.Equal(t, 1, h.clusterer.calls, "no fresh items means no clustering call")

	topics, err := h.repo.ListTopics(ctx, storageFilterAll())
	require.NoError(t, err)
	assert.Len(t, topics, 2)
}

func TestRun_NewOnlyTopicsReturned(t *testing.T) {
	h := newHarness(t, &stubSource{name: "feed", items: feedItems[:3]})
	ctx := context.Background()

	first, err := h.agent.Run(ctx)
	require.NoError(t, err)
	require.Len(t, first.Topics, 2)

	advanced := first.Topics[0]
	require.NoError(t, h.repo.TransitionTopicStatus(ctx, advanced.ID,
		[]models.TopicStatus{models.TopicStatusNew}, models.TopicStatusApproved))

	second, err := h.agent.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second.TopicsReused)
	require.Len(t, second.Topics, 1)
	assert.NotEqual(t, advanced.ID, second.Topics[0].ID)
}

func TestRun_ClusteringFailureEndsRun(t *testing.T) {
	h := newHarness(t, &stubSource{name: "feed", items: feedItems})
	h.clusterer.err = errors.New("model overloaded")

	result, err := h.agent.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, h.clusterer.calls)
	assert.Equal(t, 0, result.TopicsCreated)
	assert.Empty(t, result.Topics)
	assert.Contains(t, result.ErrorMessage, "model overloaded")
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], apperr.ErrStageFailed)

	run := h.audit.last()
	assert.Equal(t, models.AuditDiscoveryRun, run.Action)
	assert.Equal(t, models.AuditFailed, run.Meta.Status)
	assert.Contains(t, run.Meta.Error, "model overloaded")
}

func TestRun_CancelledDuringClustersIsNotFatal(t *testing.T) {
	h := newHarness(t, &stubSource{name: "feed", items: feedItems})
	ctx, cancel := context.WithCancel(context.Background())
	h.clusterer.onCluster = cancel

	result, err := h.agent.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TopicsCreated)
	require.NotEmpty(t, result.Errors)
	assert.ErrorIs(t, result.Errors[len(result.Errors)-1], apperr.ErrStageFailed)
}

func TestRun_StorageFailureIsReturned(t *testing.T) {
	h := newHarness(t, &stubSource{name: "feed", items: feedItems})
	require.NoError(t, h.repo.Close())

	result, err := h.agent.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInternal)
	assert.Equal(t, 0, h.clusterer.calls)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestRun_EmptyClustersIsNotAnError(t *testing.T) {
	h := newHarness(t, &stubSource{name: "feed", items: feedItems})
	h.clusterer.clusters = nil

	result, err := h.agent.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Clusters)
	assert.Equal(t, 0, result.TopicsCreated)
	assert.Empty(t, result.ErrorMessage)
	assert.Equal(t, models.AuditSuccess, h.audit.last().Meta.Status)
}

func TestRun_SourceErrorsAreNotFatal(t *testing.T) {
	h := newHarness(t,
		&stubSource{name: "broken", err: errors.New("timeout")},
		&stubSource{name: "feed", items: feedItems[:3]},
	)

	result, err := h.agent.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.TopicsCreated)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "broken")
}

func TestRun_NoItems(t *testing.T) {
	h := newHarness(t, &stubSource{name: "feed"})

	result, err := h.agent.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Fetched)
	assert.Equal(t, 0, h.clusterer.calls)
	assert.Equal(t, []models.AuditAction{models.AuditDiscoveryRun}, h.audit.actions())
}

func TestRunForSource(t *testing.T) {
	h := newHarness(t,
		&stubSource{name: "feed", items: feedItems[:3]},
		&stubSource{name: "other", items: []models.TrendItem{{Title: "x", URL: "https://other.example.com"}}},
	)

	result, err := h.agent.RunForSource(context.Background(), "feed")
	require.NoError(t, err)
	assert.Equal(t, "feed", result.Source)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, "feed", h.audit.last().Meta.Details["source"])

	_, err = h.agent.RunForSource(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func storageFilterAll() storage.TopicFilter {
	return storage.TopicFilter{Limit: 100, OrderBy: "id"}
}
