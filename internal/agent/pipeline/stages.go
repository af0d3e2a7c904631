package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/newsroom-engine/internal/apperr"
	"github.com/newsroom-engine/internal/lifecycle"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/storage"
	"github.com/newsroom-engine/pkg/retry"
	"github.com/newsroom-engine/pkg/slug"
)

// Approve marks exactly urls as approved on the topic, advances it to
// APPROVED and creates or refreshes its article. Title merging and category
// suggestion are best-effort.
func (a *Agent) Approve(ctx context.Context, topicID uint, urls []string) (*StageResult, error) {
	selected := uniqueTrimmed(urls)
	if len(selected) == 0 {
		return nil, apperr.Validation("no sources selected")
	}

	topic, err := a.gatedTopic(ctx, topicID, lifecycle.ActionApprove)
	if err != nil {
		return nil, err
	}

	known := topic.SourceURLs()
	var matched []string
	for _, u := range selected {
		if _, ok := known[u]; ok {
			matched = append(matched, u)
		} else {
			a.log.Warn().Uint("topic_id", topicID).Str("url", u).Msg("Ignoring url not attached to topic")
		}
	}
	if len(matched) == 0 {
		return nil, apperr.Validation("none of the selected urls belong to topic %d", topicID)
	}

	start := time.Now()
	res, err := a.approve(ctx, topic, matched)
	a.finish(models.AuditApprove, topicID, start, res, err)
	return res, err
}

func (a *Agent) approve(ctx context.Context, topic *models.Topic, urls []string) (*StageResult, error) {
	const op = "approve"
	res := newResult(models.AuditApprove, topic)
	log := a.log.WithTopicID(topic.ID).WithStage(op)

	count, err := a.repo.SetSourceApproval(ctx, topic.ID, urls)
	if err != nil {
		return nil, storageErr(op, err)
	}
	res.Counts["approved"] = count
	res.Counts["sources"] = len(topic.Sources)

	approved := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		approved[u] = struct{}{}
	}
	var sources []models.Source
	for _, s := range topic.Sources {
		if _, ok := approved[s.URL]; ok {
			sources = append(sources, s)
		}
	}

	title, contentType := a.mergeTitle(ctx, topic, sources)
	article, created, err := a.repo.FindOrCreateArticle(ctx, a.newArticle(topic.ID, title, contentType))
	if err != nil {
		return nil, storageErr(op, err)
	}

	// Refresh the headline only while nothing has been drafted from it
	if !created && article.BodyHTML == "" && (article.Title != title || article.ContentType != contentType) {
		article.Title = title
		article.ContentType = contentType
		if err := a.repo.UpdateArticle(ctx, article); err != nil {
			return nil, storageErr(op, err)
		}
	}
	res.ArticleID = article.ID

	a.suggestCategory(ctx, article)

	to, err := a.commit(ctx, topic.ID, topic.Status, lifecycle.ActionApprove)
	if err != nil {
		return nil, err
	}
	res.To = to
	res.Message = article.Title

	log.Info().
		Int("approved", count).
		Uint("article_id", article.ID).
		Bool("article_created", created).
		Msg("Topic approved")
	return res, nil
}

// Collect fetches content for every approved source not yet cited and advances
// the topic to COLLECTED. Per-source failures are skipped and counted.
func (a *Agent) Collect(ctx context.Context, topicID uint) (*StageResult, error) {
	topic, err := a.gatedTopic(ctx, topicID, lifecycle.ActionCollect)
	if err != nil {
		return nil, err
	}
	if a.fetcher == nil {
		return nil, missing("collect", "content fetcher")
	}

	start := time.Now()
	res, err := a.collect(ctx, topic)
	a.finish(models.AuditCollect, topicID, start, res, err)
	return res, err
}

func (a *Agent) collect(ctx context.Context, topic *models.Topic) (*StageResult, error) {
	const op = "collect"
	res := newResult(models.AuditCollect, topic)
	log := a.log.WithTopicID(topic.ID).WithStage(op)

	observed := topic.Status
	processing := false
	if _, err := lifecycle.Next(observed, lifecycle.ActionStartCollect); err == nil {
		to, err := a.commit(ctx, topic.ID, observed, lifecycle.ActionStartCollect)
		if err != nil {
			return nil, err
		}
		observed = to
		processing = true
	}

	fail := func(err error) (*StageResult, error) {
		if processing {
			a.revert(ctx, topic.ID, models.TopicStatusProcessing, lifecycle.ActionCollectFailed)
		}
		return nil, err
	}

	article, err := a.ensureArticle(ctx, topic)
	if err != nil {
		return fail(storageErr(op, err))
	}
	res.ArticleID = article.ID

	existing, err := a.repo.ListCitations(ctx, article.ID)
	if err != nil {
		return fail(storageErr(op, err))
	}
	cited := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		cited[c.SourceURL] = struct{}{}
	}

	approved := topic.ApprovedSources()
	if len(approved) == 0 {
		log.Warn().Msg("Topic has no approved sources")
	}

	for _, src := range approved {
		if _, ok := cited[src.URL]; ok {
			res.Counts["already_cited"]++
			continue
		}
		if err := ctx.Err(); err != nil {
			return fail(apperr.StageFailed(op, err))
		}

		citation, err := a.fetchCitation(ctx, article.ID, src)
		if err != nil {
			res.Counts["failed"]++
			log.Warn().Err(err).Str("url", src.URL).Msg("Skipping source")
			continue
		}

		added, err := a.repo.AddCitation(ctx, citation)
		if err != nil {
			return fail(storageErr(op, err))
		}
		if added {
			res.Counts["cited"]++
			cited[src.URL] = struct{}{}
		}
	}

	to, err := a.commit(ctx, topic.ID, observed, lifecycle.ActionCollect)
	if err != nil {
		return fail(err)
	}
	res.To = to
	res.Message = fmt.Sprintf("%d cited, %d failed", res.Counts["cited"], res.Counts["failed"])

	log.Info().
		Int("cited", res.Counts["cited"]).
		Int("failed", res.Counts["failed"]).
		Int("already_cited", res.Counts["already_cited"]).
		Msg("Collect completed")
	return res, nil
}

// fetchCitation retrieves one source: transcripts for videos, page text otherwise
func (a *Agent) fetchCitation(ctx context.Context, articleID uint, src models.Source) (*models.Citation, error) {
	citation := &models.Citation{
		ArticleID:  articleID,
		SourceURL:  src.URL,
		Title:      src.Title,
		SourceType: src.Kind,
	}

	if src.Kind == models.SourceKindYouTube {
		text, err := retry.DoValue(ctx, a.retry, func(ctx context.Context) (string, error) {
			return a.fetcher.Transcribe(ctx, src.URL)
		})
		if err != nil {
			return nil, err
		}
		citation.Quote = text
		return citation, nil
	}

	page, err := retry.DoValue(ctx, a.retry, func(ctx context.Context) (*models.ScrapedPage, error) {
		return a.fetcher.Scrape(ctx, src.URL)
	})
	if err != nil {
		return nil, err
	}
	if page.Title != "" && citation.Title == "" {
		citation.Title = page.Title
	}
	citation.Quote = page.Text
	return citation, nil
}

// Draft generates the article body from its citations and advances the topic
// to DRAFTED. A generation failure reverts a COLLECTED topic to APPROVED and
// leaves the article untouched.
func (a *Agent) Draft(ctx context.Context, topicID uint) (*StageResult, error) {
	topic, err := a.gatedTopic(ctx, topicID, lifecycle.ActionDraft)
	if err != nil {
		return nil, err
	}
	if a.generator == nil {
		return nil, missing("draft", "generator")
	}

	start := time.Now()
	res, err := a.draft(ctx, topic)
	a.finish(models.AuditDraft, topicID, start, res, err)
	if err != nil {
		return nil, err
	}

	if a.autoCategorize && a.classifier != nil {
		if _, err := a.Categorize(ctx, topicID, Overrides{}); err != nil {
			a.log.Warn().Err(err).Uint("topic_id", topicID).Msg("Inline categorization failed")
		}
	}
	return res, nil
}

func (a *Agent) draft(ctx context.Context, topic *models.Topic) (*StageResult, error) {
	const op = "draft"
	res := newResult(models.AuditDraft, topic)
	log := a.log.WithTopicID(topic.ID).WithStage(op)

	article, err := a.ensureArticle(ctx, topic)
	if err != nil {
		return nil, storageErr(op, err)
	}
	res.ArticleID = article.ID

	citations, err := a.repo.ListCitations(ctx, article.ID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	res.Counts["citations"] = len(citations)

	draft, err := retry.DoValue(ctx, a.retry, func(ctx context.Context) (*models.Draft, error) {
		return a.generator.Draft(ctx, article.Title, article.ContentType, citations)
	})
	if err != nil {
		a.revert(ctx, topic.ID, topic.Status, lifecycle.ActionDraftFailed)
		return nil, apperr.StageFailed(op, err)
	}
	if draft.IsEmpty() {
		log.Warn().Msg("Generator returned an empty draft, writing placeholder")
		draft = models.PlaceholderDraft(article.Title, article.ContentType)
		res.Counts["placeholder"] = 1
	}

	applyDraft(article, draft)
	if err := a.repo.UpdateArticle(ctx, article); err != nil {
		return nil, storageErr(op, err)
	}

	to, err := a.commit(ctx, topic.ID, topic.Status, lifecycle.ActionDraft)
	if err != nil {
		return nil, err
	}
	res.To = to
	res.Message = article.Title

	log.Info().Uint("article_id", article.ID).Int("citations", len(citations)).Msg("Draft written")
	return res, nil
}

// applyDraft copies generated fields onto the article, keeping existing values
// where the draft left a field blank
func applyDraft(article *models.Article, d *models.Draft) {
	if t := strings.TrimSpace(d.Title); t != "" {
		article.Title = t
	}
	article.TLDR = d.TLDR
	article.BodyHTML = d.BodyHTML
	article.FAQHTML = d.FAQHTML
	if d.MetaTitle != "" {
		article.MetaTitle = d.MetaTitle
	}
	if d.MetaDescription != "" {
		article.MetaDescription = d.MetaDescription
	}
	if d.Keywords != nil {
		article.Keywords = models.StringSlice(d.Keywords)
	}
	if d.ContentType != "" {
		article.ContentType = d.ContentType
	}
	if d.Outline != nil {
		article.Outline = article.Outline.Merge(models.Annotations{Outline: d.Outline})
	}
}

// Review runs QA over the draft, merges the findings into the article
// annotations and advances the topic to READY whether or not issues were found.
func (a *Agent) Review(ctx context.Context, topicID uint) (*StageResult, error) {
	topic, err := a.gatedTopic(ctx, topicID, lifecycle.ActionReview)
	if err != nil {
		return nil, err
	}
	if a.reviewer == nil {
		return nil, missing("review", "reviewer")
	}

	start := time.Now()
	res, err := a.review(ctx, topic)
	a.finish(models.AuditReview, topicID, start, res, err)
	return res, err
}

func (a *Agent) review(ctx context.Context, topic *models.Topic) (*StageResult, error) {
	const op = "review"
	res := newResult(models.AuditReview, topic)

	article, err := a.article(ctx, op, topic.ID)
	if err != nil {
		return nil, err
	}
	res.ArticleID = article.ID

	citations, err := a.repo.ListCitations(ctx, article.ID)
	if err != nil {
		return nil, storageErr(op, err)
	}

	issues, err := retry.DoValue(ctx, a.retry, func(ctx context.Context) ([]models.QAIssue, error) {
		return a.reviewer.Review(ctx, article.BodyHTML, citations)
	})
	if err != nil {
		return nil, apperr.StageFailed(op, err)
	}

	before := len(article.Outline.QAIssues)
	article.Outline = article.Outline.Merge(models.Annotations{QAIssues: issues})
	if err := a.repo.UpdateArticle(ctx, article); err != nil {
		return nil, storageErr(op, err)
	}
	res.Counts["issues"] = len(issues)
	res.Counts["new_issues"] = len(article.Outline.QAIssues) - before

	to, err := a.commit(ctx, topic.ID, topic.Status, lifecycle.ActionReview)
	if err != nil {
		return nil, err
	}
	res.To = to
	res.Message = fmt.Sprintf("%d issues", len(issues))

	a.log.WithTopicID(topic.ID).Info().
		Int("issues", len(issues)).
		Int("new_issues", res.Counts["new_issues"]).
		Msg("Review completed")
	return res, nil
}

// Overrides are operator-chosen taxonomy ids that take precedence over the classifier
type Overrides struct {
	CategoryID    *uint
	SubcategoryID *uint
}

func (o Overrides) empty() bool {
	return o.CategoryID == nil && o.SubcategoryID == nil
}

// Categorize assigns the article to a taxonomy leaf and advances the topic to
// ASSIGNED (a later status is kept). Classifier ids that do not exist are
// discarded with a warning.
func (a *Agent) Categorize(ctx context.Context, topicID uint, overrides Overrides) (*StageResult, error) {
	topic, err := a.gatedTopic(ctx, topicID, lifecycle.ActionCategorize)
	if err != nil {
		return nil, err
	}
	if overrides.empty() && a.classifier == nil {
		return nil, missing("categorize", "classifier")
	}

	start := time.Now()
	res, err := a.categorize(ctx, topic, overrides)
	// Bad operator input is reported, not audited as a stage failure
	if apperr.KindOf(err) == apperr.KindValidation {
		return nil, err
	}
	a.finish(models.AuditCategorize, topicID, start, res, err)
	return res, err
}

func (a *Agent) categorize(ctx context.Context, topic *models.Topic, overrides Overrides) (*StageResult, error) {
	const op = "categorize"
	res := newResult(models.AuditCategorize, topic)
	log := a.log.WithTopicID(topic.ID).WithStage(op)

	article, err := a.article(ctx, op, topic.ID)
	if err != nil {
		return nil, err
	}
	res.ArticleID = article.ID

	options, err := a.repo.ListSubcategories(ctx)
	if err != nil {
		return nil, storageErr(op, err)
	}
	tax := newTaxonomy(options)

	var categoryID, subcategoryID *uint
	if !overrides.empty() {
		categoryID, subcategoryID, err = tax.resolveOverrides(overrides)
		if err != nil {
			return nil, err
		}
		res.Counts["override"] = 1
	} else {
		cls, err := retry.DoValue(ctx, a.retry, func(ctx context.Context) (*models.Classification, error) {
			return a.classifier.Classify(ctx, article, options)
		})
		if err != nil {
			return nil, apperr.StageFailed(op, err)
		}
		categoryID, subcategoryID = tax.resolve(cls, log)
		article.Outline = article.Outline.Merge(models.Annotations{CategorySuggestion: suggestionOf(cls)})
	}

	if categoryID != nil {
		article.CategoryID = categoryID
		article.SubcategoryID = subcategoryID
		res.Counts["assigned"] = 1
	}
	if err := a.repo.UpdateArticle(ctx, article); err != nil {
		return nil, storageErr(op, err)
	}

	to, err := a.commit(ctx, topic.ID, topic.Status, lifecycle.ActionCategorize)
	if err != nil {
		return nil, err
	}
	res.To = to
	if subcategoryID != nil {
		res.Message = fmt.Sprintf("subcategory %d", *subcategoryID)
	} else if categoryID != nil {
		res.Message = fmt.Sprintf("category %d", *categoryID)
	} else {
		res.Message = "no valid category"
	}

	log.Info().Str("result", res.Message).Msg("Categorize completed")
	return res, nil
}

// suggestCategory stores the classifier's opinion on the article without
// applying it. Any failure is only logged.
func (a *Agent) suggestCategory(ctx context.Context, article *models.Article) {
	if a.classifier == nil {
		return
	}
	log := a.log.WithArticleID(article.ID)

	options, err := a.repo.ListSubcategories(ctx)
	if err != nil || len(options) == 0 {
		if err != nil {
			log.Warn().Err(err).Msg("Failed to list subcategories")
		}
		return
	}

	cls, err := retry.DoValue(ctx, a.retry, func(ctx context.Context) (*models.Classification, error) {
		return a.classifier.Classify(ctx, article, options)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Category suggestion failed")
		return
	}

	tax := newTaxonomy(options)
	catID, subID := tax.resolve(cls, log)
	suggestion := suggestionOf(cls)
	suggestion.CategoryID, suggestion.SubcategoryID = catID, subID

	article.Outline = article.Outline.Merge(models.Annotations{CategorySuggestion: suggestion})
	if err := a.repo.UpdateArticle(ctx, article); err != nil {
		log.Warn().Err(err).Msg("Failed to store category suggestion")
	}
}

func suggestionOf(cls *models.Classification) *models.CategorySuggestion {
	if cls == nil {
		return &models.CategorySuggestion{}
	}
	return &models.CategorySuggestion{
		Label:         cls.Label,
		CategoryID:    cls.CategoryID,
		SubcategoryID: cls.SubcategoryID,
	}
}

// ensureArticle returns the topic's article, creating it from the approved
// sources when it does not exist yet
func (a *Agent) ensureArticle(ctx context.Context, topic *models.Topic) (*models.Article, error) {
	article, err := a.repo.GetArticleByTopic(ctx, topic.ID)
	if err == nil {
		return article, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	title, contentType := a.mergeTitle(ctx, topic, topic.ApprovedSources())
	article, _, err = a.repo.FindOrCreateArticle(ctx, a.newArticle(topic.ID, title, contentType))
	return article, err
}

func (a *Agent) newArticle(topicID uint, title string, contentType models.ContentType) *models.Article {
	return &models.Article{
		TopicID:     topicID,
		Slug:        slug.WithTimestamp(title, a.now()),
		Title:       title,
		ContentType: contentType,
	}
}

// mergeTitle asks the title merger for a headline, falling back to the topic title
func (a *Agent) mergeTitle(ctx context.Context, topic *models.Topic, sources []models.Source) (string, models.ContentType) {
	hint := dominantContentType(sources, a.defaultType)
	if a.merger == nil {
		return topic.Title, hint
	}

	titles := make([]string, 0, len(sources)+1)
	for _, s := range sources {
		if t := strings.TrimSpace(s.Title); t != "" {
			titles = append(titles, t)
		}
	}
	if len(titles) == 0 {
		titles = append(titles, topic.Title)
	}

	merged, err := retry.DoValue(ctx, a.retry, func(ctx context.Context) (*models.MergedTitle, error) {
		return a.merger.MergeTitle(ctx, titles, hint)
	})
	if err != nil {
		a.log.Warn().Err(err).Uint("topic_id", topic.ID).Msg("Title merge failed, using topic title")
		return topic.Title, hint
	}

	title := strings.TrimSpace(merged.Title)
	if title == "" {
		title = topic.Title
	}
	contentType := merged.ContentType
	if contentType == "" {
		contentType = hint
	}
	return title, contentType
}

// dominantContentType returns the most common content type among sources
func dominantContentType(sources []models.Source, fallback models.ContentType) models.ContentType {
	counts := make(map[models.ContentType]int)
	for _, s := range sources {
		if s.ContentType != "" {
			counts[s.ContentType]++
		}
	}
	if len(counts) == 0 {
		return fallback
	}

	types := make([]models.ContentType, 0, len(counts))
	for ct := range counts {
		types = append(types, ct)
	}
	sort.Slice(types, func(i, j int) bool {
		if counts[types[i]] != counts[types[j]] {
			return counts[types[i]] > counts[types[j]]
		}
		return types[i] < types[j]
	})
	return types[0]
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
