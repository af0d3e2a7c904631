package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/newsroom-engine/internal/models"
)

// quoteExcerpt bounds how much of each citation goes into a prompt
const quoteExcerpt = 600

// MergeTitle turns approved source titles into one article title
func (c *Client) MergeTitle(ctx context.Context, titles []string, hint models.ContentType) (*models.MergedTitle, error) {
	if len(titles) == 0 {
		return nil, fmt.Errorf("merge title: no titles")
	}

	hintLabel := string(hint)
	if hintLabel == "" {
		hintLabel = "Unknown"
	}

	var b strings.Builder
	for _, t := range titles {
		fmt.Fprintf(&b, "- %s\n", t)
	}

	response, err := c.CompleteWithJSON(ctx, MergeTitleSystemPrompt, fmt.Sprintf(MergeTitleUserPrompt, hintLabel, b.String()))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Title       string `json:"title"`
		ContentType string `json:"content_type"`
	}
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(response)), &parsed); err != nil {
		c.log.Error().Err(err).Str("response", response).Msg("Failed to parse title merge response")
		return nil, fmt.Errorf("failed to parse title merge response: %w", err)
	}

	merged := &models.MergedTitle{
		Title:       strings.TrimSpace(parsed.Title),
		ContentType: models.ParseContentType(parsed.ContentType),
	}
	if merged.Title == "" {
		merged.Title = strings.TrimSpace(titles[0])
	}
	if merged.ContentType == "" {
		merged.ContentType = hint
	}
	return merged, nil
}

type draftResponse struct {
	Title   string `json:"title"`
	TLDR    string `json:"tl_dr"`
	Body    string `json:"body_html"`
	FAQ     string `json:"faq_html"`
	Outline *struct {
		Sections []struct {
			Heading string   `json:"heading"`
			Points  []string `json:"points"`
			Summary string   `json:"summary"`
		} `json:"sections"`
	} `json:"outline"`
	MetaTitle       string   `json:"meta_title"`
	MetaDescription string   `json:"meta_description"`
	Keywords        []string `json:"keywords"`
	ContentType     string   `json:"content_type"`
}

// Draft composes the article from its citations. Transport errors are returned;
// an answer that cannot be parsed yields a placeholder draft instead.
func (c *Client) Draft(ctx context.Context, title string, contentType models.ContentType, citations []*models.Citation) (*models.Draft, error) {
	response, err := c.CompleteWithJSON(ctx, DraftSystemPrompt,
		fmt.Sprintf(DraftUserPrompt, title, contentTypeLabel(contentType), formatSources(citations)))
	if err != nil {
		return nil, err
	}

	draft, err := parseDraft(response, title, contentType)
	if err != nil {
		c.log.Warn().Err(err).Str("title", title).Msg("Unusable draft response, using placeholder")
		return models.PlaceholderDraft(title, contentType), nil
	}
	return draft, nil
}

func parseDraft(response, title string, fallbackType models.ContentType) (*models.Draft, error) {
	var parsed draftResponse
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(response)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse draft response: %w", err)
	}

	draft := &models.Draft{
		Title:           strings.TrimSpace(parsed.Title),
		TLDR:            strings.TrimSpace(parsed.TLDR),
		BodyHTML:        strings.TrimSpace(parsed.Body),
		FAQHTML:         strings.TrimSpace(parsed.FAQ),
		MetaTitle:       strings.TrimSpace(parsed.MetaTitle),
		MetaDescription: strings.TrimSpace(parsed.MetaDescription),
		ContentType:     models.ParseContentType(parsed.ContentType),
	}
	if draft.IsEmpty() {
		return nil, fmt.Errorf("draft response has no body")
	}
	if draft.Title == "" {
		draft.Title = title
	}
	if draft.ContentType == "" {
		draft.ContentType = fallbackType
	}
	for _, k := range parsed.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			draft.Keywords = append(draft.Keywords, k)
		}
	}

	if parsed.Outline != nil && len(parsed.Outline.Sections) > 0 {
		outline := &models.Outline{}
		for _, s := range parsed.Outline.Sections {
			points := s.Points
			if s.Summary != "" {
				points = append(points, s.Summary)
			}
			outline.Sections = append(outline.Sections, models.OutlineSection{Heading: s.Heading, Points: points})
		}
		draft.Outline = outline
	}
	return draft, nil
}

// Review runs the QA pass over the article body
func (c *Client) Review(ctx context.Context, bodyHTML string, citations []*models.Citation) ([]models.QAIssue, error) {
	var b strings.Builder
	for i, cit := range citations {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, cit.SourceURL)
	}

	response, err := c.CompleteWithJSON(ctx, ReviewSystemPrompt, fmt.Sprintf(ReviewUserPrompt, bodyHTML, b.String()))
	if err != nil {
		return nil, err
	}

	issues, err := parseIssues(response)
	if err != nil {
		c.log.Error().Err(err).Str("response", response).Msg("Failed to parse review response")
		return nil, err
	}
	return issues, nil
}

func parseIssues(response string) ([]models.QAIssue, error) {
	var parsed struct {
		Issues []models.QAIssue `json:"issues"`
	}
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(response)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse review response: %w", err)
	}

	issues := make([]models.QAIssue, 0, len(parsed.Issues))
	for _, issue := range parsed.Issues {
		issue.Type = strings.ToUpper(strings.TrimSpace(issue.Type))
		issue.Message = strings.TrimSpace(issue.Message)
		if issue.Message == "" {
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// Classify picks a subcategory for the article. The ids it returns are not
// validated here; callers check them against the taxonomy.
func (c *Client) Classify(ctx context.Context, article *models.Article, options []models.SubcategoryOption) (*models.Classification, error) {
	if len(options) == 0 {
		return &models.Classification{}, nil
	}

	var b strings.Builder
	for _, o := range options {
		fmt.Fprintf(&b, "- %d | %s > %s\n", o.ID, o.CategoryName, o.Name)
	}

	response, err := c.CompleteWithJSON(ctx, ClassifySystemPrompt, fmt.Sprintf(ClassifyUserPrompt, article.Title, article.TLDR, b.String()))
	if err != nil {
		return nil, err
	}

	result, err := parseClassification(response)
	if err != nil {
		c.log.Error().Err(err).Str("response", response).Msg("Failed to parse classification response")
		return nil, err
	}
	return result, nil
}

// flexID accepts ids answered as numbers or numeric strings
type flexID struct {
	value *uint
}

func (f *flexID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		// Not an id we could ever match; leave it unset
		return nil
	}
	v := uint(n)
	f.value = &v
	return nil
}

func parseClassification(response string) (*models.Classification, error) {
	var parsed struct {
		Label         string `json:"label"`
		CategoryID    flexID `json:"category_id"`
		SubcategoryID flexID `json:"subcategory_id"`
	}
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(response)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse classification response: %w", err)
	}
	return &models.Classification{
		Label:         strings.TrimSpace(parsed.Label),
		CategoryID:    parsed.CategoryID.value,
		SubcategoryID: parsed.SubcategoryID.value,
	}, nil
}

func formatSources(citations []*models.Citation) string {
	if len(citations) == 0 {
		return "(no sources collected)"
	}
	var b strings.Builder
	for i, cit := range citations {
		quote := cit.Quote
		if len(quote) > quoteExcerpt {
			quote = quote[:quoteExcerpt]
		}
		fmt.Fprintf(&b, "[%d] %s - %s - %s\n%s\n\n", i+1, cit.SourceType, cit.Title, cit.SourceURL, quote)
	}
	return b.String()
}

func contentTypeLabel(ct models.ContentType) string {
	if ct == "" {
		return "General"
	}
	return string(ct)
}
