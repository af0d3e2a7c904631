// Package pipeline runs the editorial stages (approve, collect, draft, review,
// categorize, publish) and the operator actions around them.
//
// Every stage follows the same contract: load the topic, check the gating
// rule without touching storage, do the work, then commit the status with a
// compare-and-swap against the status observed at the start. Failures revert
// to the last good status where the lifecycle defines one and always leave a
// FAILED audit entry behind.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/newsroom-engine/internal/apperr"
	"github.com/newsroom-engine/internal/audit"
	"github.com/newsroom-engine/internal/lifecycle"
	"github.com/newsroom-engine/internal/metrics"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/storage"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/retry"
)

// TitleMerger picks one headline for a set of source titles
type TitleMerger interface {
	MergeTitle(ctx context.Context, titles []string, hint models.ContentType) (*models.MergedTitle, error)
}

// Generator writes the article draft
type Generator interface {
	Draft(ctx context.Context, title string, contentType models.ContentType, citations []*models.Citation) (*models.Draft, error)
}

// Reviewer checks a draft against its citations
type Reviewer interface {
	Review(ctx context.Context, bodyHTML string, citations []*models.Citation) ([]models.QAIssue, error)
}

// Classifier maps an article to a taxonomy leaf
type Classifier interface {
	Classify(ctx context.Context, article *models.Article, options []models.SubcategoryOption) (*models.Classification, error)
}

// ContentFetcher retrieves source content for citations
type ContentFetcher interface {
	Scrape(ctx context.Context, url string) (*models.ScrapedPage, error)
	Transcribe(ctx context.Context, url string) (string, error)
}

// SourceIndex keeps the exact-hash cache in step with stored sources
type SourceIndex interface {
	Remember(ctx context.Context, sources []*models.Source)
	Forget(ctx context.Context, hashes []string)
}

// Deps are the collaborators the stages need. Collaborators other than Repo
// may be nil; the stage that needs a missing one fails.
type Deps struct {
	Repo        storage.Repository
	TitleMerger TitleMerger
	Generator   Generator
	Reviewer    Reviewer
	Classifier  Classifier
	Fetcher     ContentFetcher
	Index       SourceIndex
	Audit       audit.Recorder
	Metrics     *metrics.Metrics
	Retry       retry.Config

	// AutoCategorize runs Categorize right after a successful Draft
	AutoCategorize bool
	// DefaultContentType is used when sources carry no content type
	DefaultContentType models.ContentType
}

// Agent executes pipeline stages
type Agent struct {
	repo           storage.Repository
	merger         TitleMerger
	generator      Generator
	reviewer       Reviewer
	classifier     Classifier
	fetcher        ContentFetcher
	index          SourceIndex
	audit          audit.Recorder
	metrics        *metrics.Metrics
	retry          retry.Config
	autoCategorize bool
	defaultType    models.ContentType
	log            *logger.Logger

	now func() time.Time
}

// NewAgent creates a new pipeline agent
func NewAgent(deps Deps, log *logger.Logger) *Agent {
	rec := deps.Audit
	if rec == nil {
		rec = audit.Nop{}
	}
	defaultType := deps.DefaultContentType
	if defaultType == "" {
		defaultType = models.ContentTypeNews
	}
	return &Agent{
		repo:           deps.Repo,
		merger:         deps.TitleMerger,
		generator:      deps.Generator,
		reviewer:       deps.Reviewer,
		classifier:     deps.Classifier,
		fetcher:        deps.Fetcher,
		index:          deps.Index,
		audit:          rec,
		metrics:        deps.Metrics,
		retry:          deps.Retry,
		autoCategorize: deps.AutoCategorize,
		defaultType:    defaultType,
		log:            log.WithComponent("pipeline"),
		now:            time.Now,
	}
}

// StageResult describes a completed stage or action
type StageResult struct {
	Stage     models.AuditAction
	TopicID   uint
	ArticleID uint
	From      models.TopicStatus
	To        models.TopicStatus
	Message   string
	Counts    map[string]int
}

func newResult(stage models.AuditAction, topic *models.Topic) *StageResult {
	return &StageResult{
		Stage:   stage,
		TopicID: topic.ID,
		From:    topic.Status,
		To:      topic.Status,
		Counts:  map[string]int{},
	}
}

// loadTopic maps storage misses to NotFound
func (a *Agent) loadTopic(ctx context.Context, op string, id uint) (*models.Topic, error) {
	topic, err := a.repo.GetTopic(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("topic", id)
		}
		return nil, apperr.Internal(op, err)
	}
	return topic, nil
}

// gatedTopic loads the topic and applies the gating rule. Nothing is written
// when the topic may not run the stage.
func (a *Agent) gatedTopic(ctx context.Context, id uint, action lifecycle.Action) (*models.Topic, error) {
	topic, err := a.loadTopic(ctx, string(action), id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Gate(topic.Status, action); err != nil {
		a.metrics.StageGated(string(action))
		a.log.Warn().
			Uint("topic_id", id).
			Str("status", string(topic.Status)).
			Str("stage", string(action)).
			Msg("Stage refused by gating rule")
		return nil, err
	}
	return topic, nil
}

// commit moves the topic from the status observed earlier to the status the
// action leads to. It fails with a Conflict when another writer moved it first.
func (a *Agent) commit(ctx context.Context, topicID uint, observed models.TopicStatus, action lifecycle.Action) (models.TopicStatus, error) {
	to, err := lifecycle.Next(observed, action)
	if err != nil {
		return "", err
	}
	err = a.repo.TransitionTopicStatus(ctx, topicID, []models.TopicStatus{observed}, to)
	switch {
	case err == nil:
		return to, nil
	case errors.Is(err, storage.ErrStaleStatus):
		return "", apperr.Conflict(string(action), "topic %d left status %s while the stage ran", topicID, observed)
	case errors.Is(err, storage.ErrNotFound):
		return "", apperr.NotFound("topic", topicID)
	default:
		return "", apperr.Internal(string(action), err)
	}
}

// revert applies a failure transition. It runs even when ctx is cancelled so a
// timed out stage never leaves the topic parked.
func (a *Agent) revert(ctx context.Context, topicID uint, from models.TopicStatus, action lifecycle.Action) {
	to, err := lifecycle.Next(from, action)
	if err != nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := a.repo.TransitionTopicStatus(ctx, topicID, []models.TopicStatus{from}, to); err != nil {
		a.log.Error().
			Err(err).
			Uint("topic_id", topicID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("Failed to revert topic status")
		return
	}
	a.log.Info().
		Uint("topic_id", topicID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Reverted topic status")
}

// finish writes the audit entry and metrics for a stage attempt
func (a *Agent) finish(stage models.AuditAction, topicID uint, start time.Time, res *StageResult, err error) {
	a.metrics.ObserveStage(string(stage), err, time.Since(start))

	if err != nil {
		a.log.Error().Err(err).Uint("topic_id", topicID).Str("stage", string(stage)).Msg("Stage failed")
		a.audit.Record(audit.Failure(stage, topicID, err))
		return
	}

	entry := audit.Success(stage, topicID, res.Message)
	entry.Meta.Counts = res.Counts
	entry.Meta.Details = map[string]string{
		"from": string(res.From),
		"to":   string(res.To),
	}
	if res.ArticleID != 0 {
		entry.Meta.Details["article_id"] = strconv.FormatUint(uint64(res.ArticleID), 10)
	}
	a.audit.Record(entry)
}

// storageErr wraps repository failures inside a stage
func storageErr(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("record", op)
	}
	return apperr.Internal(op, err)
}

// article loads the topic's article or fails with NotFound
func (a *Agent) article(ctx context.Context, op string, topicID uint) (*models.Article, error) {
	article, err := a.repo.GetArticleByTopic(ctx, topicID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("article for topic", topicID)
		}
		return nil, apperr.Internal(op, err)
	}
	return article, nil
}

func missing(op, collaborator string) error {
	return apperr.StageFailed(op, fmt.Errorf("no %s configured", collaborator))
}
