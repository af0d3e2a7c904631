// Package discovery turns batches of trend items into topics and sources.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newsroom-engine/internal/apperr"
	"github.com/newsroom-engine/internal/audit"
	"github.com/newsroom-engine/internal/dedup"
	"github.com/newsroom-engine/internal/metrics"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/source"
	"github.com/newsroom-engine/internal/storage"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/retry"
)

// Clusterer groups trend items under master titles
type Clusterer interface {
	Cluster(ctx context.Context, items []models.TrendItem) ([]models.Cluster, error)
}

// Deps are the collaborators a discovery run needs
type Deps struct {
	Sources   *source.Manager
	Clusterer Clusterer
	Index     *dedup.Index
	Repo      storage.Repository
	Audit     audit.Recorder
	Metrics   *metrics.Metrics
	Retry     retry.Config
}

// Agent runs discovery
type Agent struct {
	sources   *source.Manager
	clusterer Clusterer
	index     *dedup.Index
	repo      storage.Repository
	audit     audit.Recorder
	metrics   *metrics.Metrics
	retry     retry.Config
	log       *logger.Logger
}

// NewAgent creates a new discovery agent
func NewAgent(deps Deps, log *logger.Logger) *Agent {
	rec := deps.Audit
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Agent{
		sources:   deps.Sources,
		clusterer: deps.Clusterer,
		index:     deps.Index,
		repo:      deps.Repo,
		audit:     rec,
		metrics:   deps.Metrics,
		retry:     deps.Retry,
		log:       log.WithComponent("discovery"),
	}
}

// Result contains the results of a discovery run
type Result struct {
	Source            string
	Fetched           int
	DuplicatesSkipped int
	Invalid           int
	Clusters          int
	ClustersSkipped   int
	TopicsCreated     int
	TopicsReused      int
	SourcesAdded      int
	Degraded          int
	// Topics holds the touched topics still in NEW
	Topics       []*models.Topic
	Errors       []error
	ErrorMessage string
	Duration     time.Duration
}

// Run fetches every registered source and processes the combined batch
func (a *Agent) Run(ctx context.Context) (*Result, error) {
	a.log.Info().Int("sources", len(a.sources.GetSources())).Msg("Starting discovery")

	items, errs := a.sources.FetchAll(ctx)
	return a.process(ctx, "", items, errs)
}

// RunForSource runs discovery over a single registered source
func (a *Agent) RunForSource(ctx context.Context, name string) (*Result, error) {
	if a.sources.GetSourceByName(name) == nil {
		return nil, apperr.NotFound("source", name)
	}

	a.log.Info().Str("source", name).Msg("Starting discovery for source")

	items, err := a.sources.FetchOne(ctx, name)
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	return a.process(ctx, name, items, errs)
}

// run tracks per-run bookkeeping shared by the steps
type run struct {
	result  *Result
	touched []uint
	seen    map[uint]bool
}

func (r *run) touch(topicID uint) bool {
	if r.seen[topicID] {
		return false
	}
	r.seen[topicID] = true
	r.touched = append(r.touched, topicID)
	return true
}

func (a *Agent) process(ctx context.Context, sourceName string, items []models.TrendItem, fetchErrs []error) (*Result, error) {
	start := time.Now()
	r := &run{
		result: &Result{Source: sourceName, Fetched: len(items)},
		seen:   make(map[uint]bool),
	}
	res := r.result

	for _, err := range fetchErrs {
		res.Errors = append(res.Errors, err)
		var fe *source.FetchError
		if errors.As(err, &fe) {
			a.metrics.SourceFailed(fe.Source)
		}
		a.log.Warn().Err(err).Msg("Trend source failed")
	}

	a.log.Info().
		Int("items", len(items)).
		Int("fetch_errors", len(fetchErrs)).
		Msg("Fetched trend items")

	err := a.discover(ctx, r, items)
	if err != nil {
		res.ErrorMessage = err.Error()
		res.Errors = append(res.Errors, err)
	}

	a.collectNewTopics(ctx, r)
	res.Duration = time.Since(start)

	a.recordRun(res)
	a.metrics.ObserveDiscovery(metrics.DiscoveryRun{
		Fetched:    res.Fetched,
		Duplicates: res.DuplicatesSkipped,
		Created:    res.TopicsCreated,
		Reused:     res.TopicsReused,
		Degraded:   res.Degraded,
		Err:        err,
		Elapsed:    res.Duration,
	})

	a.log.Info().
		Int("fetched", res.Fetched).
		Int("duplicates", res.DuplicatesSkipped).
		Int("clusters", res.Clusters).
		Int("created", res.TopicsCreated).
		Int("reused", res.TopicsReused).
		Int("sources_added", res.SourcesAdded).
		Dur("duration", res.Duration).
		Msg("Discovery completed")

	// Storage failures end the run with an error; collaborator failures are
	// reported through the result only
	if apperr.IsInternal(err) {
		return res, err
	}
	return res, nil
}

// discover runs the exact stage, clustering and per-cluster resolution
func (a *Agent) discover(ctx context.Context, r *run, items []models.TrendItem) error {
	res := r.result
	if len(items) == 0 {
		a.log.Warn().Msg("No trend items fetched")
		return nil
	}

	exact, err := a.index.FilterExact(ctx, items)
	if err != nil {
		return apperr.Internal("discover", err)
	}
	res.DuplicatesSkipped = exact.Skipped
	res.Invalid = exact.Invalid

	// Topics owning an already stored URL are reused without clustering
	for _, id := range exact.KnownTopicIDs {
		if r.touch(id) {
			res.TopicsReused++
			a.audit.Record(topicEntry(models.AuditTopicReused, id, "known source url", nil))
		}
	}

	a.log.Info().
		Int("fresh", len(exact.Fresh)).
		Int("duplicates", exact.Skipped).
		Int("invalid", exact.Invalid).
		Msg("Exact deduplication done")

	if len(exact.Fresh) == 0 {
		return nil
	}

	fresh := make([]models.TrendItem, 0, len(exact.Fresh))
	byURL := make(map[string]dedup.Candidate, len(exact.Fresh))
	for _, c := range exact.Fresh {
		fresh = append(fresh, c.Item)
		byURL[c.URLNorm] = c
	}

	clusters, err := retry.DoValue(ctx, a.retry, func(ctx context.Context) ([]models.Cluster, error) {
		return a.clusterer.Cluster(ctx, fresh)
	})
	if err != nil {
		a.log.Error().Err(err).Msg("Clustering failed, ending run")
		return apperr.StageFailed("discover", fmt.Errorf("clustering failed: %w", err))
	}

	res.Clusters = len(clusters)
	if len(clusters) == 0 {
		a.log.Info().Msg("No relevant clusters this run")
		return nil
	}

	consumed := make(map[string]bool)
	for _, cluster := range clusters {
		if ctx.Err() != nil {
			return apperr.StageFailed("discover", ctx.Err())
		}
		if err := a.processCluster(ctx, r, cluster, byURL, consumed); err != nil {
			if apperr.IsInternal(err) {
				return err
			}
			res.Errors = append(res.Errors, err)
		}
	}
	return nil
}

func (a *Agent) processCluster(
	ctx context.Context,
	r *run,
	cluster models.Cluster,
	byURL map[string]dedup.Candidate,
	consumed map[string]bool,
) error {
	res := r.result
	master := strings.TrimSpace(cluster.MasterTitle)
	if master == "" {
		res.ClustersSkipped++
		a.log.Debug().Int("children", len(cluster.Children)).Msg("Skipping cluster without master title")
		return nil
	}

	resolution, err := a.index.Resolve(ctx, master)
	if err != nil {
		a.log.Warn().Err(err).Str("master_title", master).Msg("Failed to resolve cluster")
		return fmt.Errorf("resolve %q: %w", master, err)
	}
	topic := resolution.Topic
	if resolution.Degraded {
		res.Degraded++
	}

	sources := a.sourcesFor(topic.ID, cluster.Children, byURL, consumed)
	added := 0
	if len(sources) > 0 {
		added, err = a.repo.AddSources(ctx, sources)
		if err != nil {
			return apperr.Internal("discover", fmt.Errorf("add sources to topic %d: %w", topic.ID, err))
		}
		a.index.Remember(ctx, sources)
	}
	res.SourcesAdded += added

	details := map[string]string{"method": string(resolution.Method), "slug": topic.Slug}
	counts := map[string]int{"sources_added": added}
	if r.touch(topic.ID) {
		action := models.AuditTopicReused
		if resolution.Created() {
			action = models.AuditTopicCreated
			res.TopicsCreated++
		} else {
			res.TopicsReused++
		}
		entry := topicEntry(action, topic.ID, master, details)
		entry.Meta.Counts = counts
		a.audit.Record(entry)
	}

	a.log.Debug().
		Uint("topic_id", topic.ID).
		Str("method", string(resolution.Method)).
		Float64("score", resolution.Score).
		Int("sources_added", added).
		Msg("Cluster resolved")
	return nil
}

// sourcesFor maps cluster children back to submitted items. Children the
// clusterer invented, or already placed in an earlier cluster, are ignored.
func (a *Agent) sourcesFor(
	topicID uint,
	children []models.ClusterChild,
	byURL map[string]dedup.Candidate,
	consumed map[string]bool,
) []*models.Source {
	sources := make([]*models.Source, 0, len(children))
	for _, child := range children {
		norm := dedup.NormalizeURL(child.URL)
		cand, ok := byURL[norm]
		if !ok {
			a.log.Debug().Str("url", child.URL).Msg("Ignoring unknown cluster child")
			continue
		}
		if consumed[norm] {
			continue
		}
		consumed[norm] = true

		title := strings.TrimSpace(child.Title)
		if title == "" {
			title = cand.Item.Title
		}
		kind := child.Kind
		if kind == "" {
			kind = cand.Item.Kind
		}
		if kind == "" {
			kind = models.SourceKindNews
		}

		sources = append(sources, &models.Source{
			TopicID:     topicID,
			URL:         cand.Item.URL,
			URLNorm:     cand.URLNorm,
			URLHash:     cand.URLHash,
			Title:       title,
			SourceLabel: cand.Item.SourceLabel,
			Kind:        kind,
			ContentType: child.ContentType,
		})
	}
	return sources
}

// collectNewTopics fills Result.Topics with touched topics still in NEW
func (a *Agent) collectNewTopics(ctx context.Context, r *run) {
	for _, id := range r.touched {
		topic, err := a.repo.GetTopic(ctx, id)
		if err != nil {
			a.log.Warn().Err(err).Uint("topic_id", id).Msg("Failed to reload topic")
			continue
		}
		if topic.Status == models.TopicStatusNew {
			r.result.Topics = append(r.result.Topics, topic)
		}
	}
}

func (a *Agent) recordRun(res *Result) {
	entry := &models.AuditLogEntry{
		Action: models.AuditDiscoveryRun,
		Meta: models.AuditMeta{
			Status:  models.AuditSuccess,
			Message: fmt.Sprintf("%d created, %d reused", res.TopicsCreated, res.TopicsReused),
			Counts: map[string]int{
				"fetched":          res.Fetched,
				"duplicates":       res.DuplicatesSkipped,
				"invalid":          res.Invalid,
				"clusters":         res.Clusters,
				"clusters_skipped": res.ClustersSkipped,
				"topics_created":   res.TopicsCreated,
				"topics_reused":    res.TopicsReused,
				"sources_added":    res.SourcesAdded,
				"errors":           len(res.Errors),
			},
		},
	}
	if res.Source != "" {
		entry.Meta.Details = map[string]string{"source": res.Source}
	}
	if res.ErrorMessage != "" {
		entry.Meta.Status = models.AuditFailed
		entry.Meta.Error = res.ErrorMessage
	}
	a.audit.Record(entry)
}

func topicEntry(action models.AuditAction, topicID uint, message string, details map[string]string) *models.AuditLogEntry {
	entry := audit.Success(action, topicID, message)
	entry.Meta.Details = details
	return entry
}
