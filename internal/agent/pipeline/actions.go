package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/newsroom-engine/internal/apperr"
	"github.com/newsroom-engine/internal/audit"
	"github.com/newsroom-engine/internal/dedup"
	"github.com/newsroom-engine/internal/fetcher"
	"github.com/newsroom-engine/internal/lifecycle"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/storage"
	"github.com/newsroom-engine/pkg/slug"
)

// Publish stamps the article's publishedAt and moves its topic to PUBLISHED
func (a *Agent) Publish(ctx context.Context, articleID uint) (*StageResult, error) {
	article, err := a.loadArticle(ctx, "publish", articleID)
	if err != nil {
		return nil, err
	}
	if article.Topic == nil {
		return nil, apperr.NotFound("topic for article", articleID)
	}
	topic := article.Topic
	if err := lifecycle.Gate(topic.Status, lifecycle.ActionPublish); err != nil {
		a.metrics.StageGated(string(lifecycle.ActionPublish))
		return nil, err
	}

	start := time.Now()
	res, err := a.publish(ctx, topic, article)
	a.finish(models.AuditPublish, topic.ID, start, res, err)
	return res, err
}

func (a *Agent) publish(ctx context.Context, topic *models.Topic, article *models.Article) (*StageResult, error) {
	const op = "publish"
	res := newResult(models.AuditPublish, topic)
	res.ArticleID = article.ID

	to, err := a.commit(ctx, topic.ID, topic.Status, lifecycle.ActionPublish)
	if err != nil {
		return nil, err
	}
	res.To = to

	at := a.now()
	if err := a.repo.SetArticlePublishedAt(ctx, article.ID, &at); err != nil {
		return nil, storageErr(op, err)
	}
	res.Message = article.Slug

	a.log.WithArticleID(article.ID).Info().Uint("topic_id", topic.ID).Msg("Article published")
	return res, nil
}

// Unpublish clears publishedAt. The topic stays PUBLISHED.
func (a *Agent) Unpublish(ctx context.Context, articleID uint) (*StageResult, error) {
	const op = "unpublish"
	article, err := a.loadArticle(ctx, op, articleID)
	if err != nil {
		return nil, err
	}

	res := &StageResult{Stage: models.AuditUnpublish, TopicID: article.TopicID, ArticleID: article.ID, Counts: map[string]int{}}
	if article.Topic != nil {
		res.From, res.To = article.Topic.Status, article.Topic.Status
	}

	start := time.Now()
	err = a.repo.SetArticlePublishedAt(ctx, article.ID, nil)
	if err != nil {
		err = storageErr(op, err)
		res = nil
	} else {
		res.Message = article.Slug
		a.log.WithArticleID(article.ID).Info().Msg("Article unpublished")
	}
	a.finish(models.AuditUnpublish, article.TopicID, start, res, err)
	return res, err
}

// Disapprove moves a topic to the DISAPPROVED terminal status
func (a *Agent) Disapprove(ctx context.Context, topicID uint) (*StageResult, error) {
	return a.escape(ctx, topicID, lifecycle.ActionDisapprove, models.AuditDisapprove)
}

// MarkDuplicate moves a topic to the DUPLICATE terminal status
func (a *Agent) MarkDuplicate(ctx context.Context, topicID uint) (*StageResult, error) {
	return a.escape(ctx, topicID, lifecycle.ActionMarkDuplicate, models.AuditMarkDuplicate)
}

func (a *Agent) escape(ctx context.Context, topicID uint, action lifecycle.Action, auditAction models.AuditAction) (*StageResult, error) {
	topic, err := a.loadTopic(ctx, string(action), topicID)
	if err != nil {
		return nil, err
	}
	if _, err := lifecycle.Next(topic.Status, action); err != nil {
		return nil, err
	}

	start := time.Now()
	res := newResult(auditAction, topic)
	to, err := a.commit(ctx, topic.ID, topic.Status, action)
	if err != nil {
		res = nil
	} else {
		res.To = to
		a.log.WithTopicID(topicID).Info().Str("status", string(to)).Msg("Topic closed")
	}
	a.finish(auditAction, topicID, start, res, err)
	return res, err
}

// DeleteTopic removes the topic with its sources, article and citations
func (a *Agent) DeleteTopic(ctx context.Context, topicID uint) (*StageResult, error) {
	const op = "delete_topic"
	topic, err := a.loadTopic(ctx, op, topicID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := newResult(models.AuditDeleteTopic, topic)
	res.Counts["sources"] = len(topic.Sources)
	res.Message = topic.Slug

	if err := a.repo.DeleteTopic(ctx, topicID); err != nil {
		err = storageErr(op, err)
		a.finish(models.AuditDeleteTopic, topicID, start, nil, err)
		return nil, err
	}

	if a.index != nil {
		hashes := make([]string, 0, len(topic.Sources))
		for _, s := range topic.Sources {
			hashes = append(hashes, s.URLHash)
		}
		a.index.Forget(ctx, hashes)
	}

	a.log.WithTopicID(topicID).Info().Int("sources", len(topic.Sources)).Msg("Topic deleted")
	a.finish(models.AuditDeleteTopic, topicID, start, res, nil)
	return res, nil
}

// CreateTopic creates a NEW topic by hand, optionally with source urls
func (a *Agent) CreateTopic(ctx context.Context, title string, urls []string) (*models.Topic, error) {
	const op = "create_topic"
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validation("topic title is required")
	}

	topic := &models.Topic{
		ExternalID: uuid.NewString(),
		Slug:       slug.WithTimestamp(title, a.now()),
		Title:      title,
		Status:     models.TopicStatusNew,
	}
	start := time.Now()
	if err := a.repo.CreateTopic(ctx, topic); err != nil {
		err = storageErr(op, err)
		a.audit.Record(audit.Failure(models.AuditManualCreation, 0, err))
		return nil, err
	}

	sources := make([]*models.Source, 0, len(urls))
	for _, u := range uniqueTrimmed(urls) {
		kind := models.SourceKindNews
		if fetcher.VideoID(u) != "" {
			kind = models.SourceKindYouTube
		}
		sources = append(sources, &models.Source{
			TopicID: topic.ID,
			URL:     u,
			URLNorm: dedup.NormalizeURL(u),
			URLHash: dedup.HashURL(u),
			Title:   title,
			Kind:    kind,
		})
	}

	res := newResult(models.AuditManualCreation, topic)
	res.Message = topic.Slug
	if len(sources) > 0 {
		added, err := a.repo.AddSources(ctx, sources)
		if err != nil {
			err = storageErr(op, err)
			a.finish(models.AuditManualCreation, topic.ID, start, nil, err)
			return nil, err
		}
		res.Counts["sources"] = added
		if a.index != nil {
			a.index.Remember(ctx, sources)
		}
	}
	a.finish(models.AuditManualCreation, topic.ID, start, res, nil)

	a.log.WithTopicID(topic.ID).Info().Str("slug", topic.Slug).Msg("Topic created manually")
	return a.loadTopic(ctx, op, topic.ID)
}

// TopicDetail is a topic with its article citations
type TopicDetail struct {
	Topic     *models.Topic
	Citations []*models.Citation
}

// GetTopic returns the topic with sources, article and citations
func (a *Agent) GetTopic(ctx context.Context, topicID uint) (*TopicDetail, error) {
	topic, err := a.loadTopic(ctx, "get_topic", topicID)
	if err != nil {
		return nil, err
	}
	detail := &TopicDetail{Topic: topic}
	if topic.Article != nil {
		detail.Citations, err = a.repo.ListCitations(ctx, topic.Article.ID)
		if err != nil {
			return nil, apperr.Internal("get_topic", err)
		}
	}
	return detail, nil
}

// ListTopics lists topics matching filter
func (a *Agent) ListTopics(ctx context.Context, filter storage.TopicFilter) ([]*models.Topic, error) {
	topics, err := a.repo.ListTopics(ctx, filter)
	if err != nil {
		return nil, apperr.Internal("list_topics", err)
	}
	return topics, nil
}

// ResumeStuck re-runs Collect for every topic left in PROCESSING
func (a *Agent) ResumeStuck(ctx context.Context) ([]*StageResult, error) {
	topics, err := a.repo.ListTopics(ctx, storage.TopicFilter{
		Statuses: []models.TopicStatus{models.TopicStatusProcessing},
		OrderBy:  "updated_at",
	})
	if err != nil {
		return nil, apperr.Internal("resume", err)
	}
	if len(topics) == 0 {
		return nil, nil
	}

	a.log.Info().Int("topics", len(topics)).Msg("Resuming topics stuck in collect")

	var results []*StageResult
	var errs []error
	for _, t := range topics {
		if !lifecycle.NeedsCollectRetry(t.Status) {
			continue
		}
		res, err := a.Collect(ctx, t.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("topic %d: %w", t.ID, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// RunPipeline runs Collect, Draft and Review as needed to bring an approved
// topic to READY. It stops at the first failing stage.
func (a *Agent) RunPipeline(ctx context.Context, topicID uint) ([]*StageResult, error) {
	topic, err := a.loadTopic(ctx, "run", topicID)
	if err != nil {
		return nil, err
	}

	steps := []struct {
		below models.TopicStatus
		run   func(context.Context, uint) (*StageResult, error)
	}{
		{models.TopicStatusCollected, a.Collect},
		{models.TopicStatusDrafted, a.Draft},
		{models.TopicStatusReady, a.Review},
	}

	var results []*StageResult
	status := topic.Status
	for _, step := range steps {
		if lifecycle.Rank(status) >= lifecycle.Rank(step.below) {
			continue
		}
		res, err := step.run(ctx, topicID)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		status = res.To
	}

	return results, nil
}

func (a *Agent) loadArticle(ctx context.Context, op string, id uint) (*models.Article, error) {
	article, err := a.repo.GetArticle(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("article", id)
		}
		return nil, apperr.Internal(op, err)
	}
	return article, nil
}
