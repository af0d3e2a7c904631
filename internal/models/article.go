package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"
)

// ContentType is the editorial classification of a piece
type ContentType string

const (
	ContentTypeLaunch        ContentType = "LAUNCH"
	ContentTypeSpecification ContentType = "SPECIFICATION"
	ContentTypeComparison    ContentType = "COMPARISON"
	ContentTypeSales         ContentType = "SALES"
	ContentTypeReview        ContentType = "REVIEW"
	ContentTypeHowTo         ContentType = "HOWTO"
	ContentTypeAnalysis      ContentType = "ANALYSIS"
	ContentTypeRumor         ContentType = "RUMOR"
	ContentTypeNews          ContentType = "NEWS"
)

var contentTypes = map[string]ContentType{
	"LAUNCH":        ContentTypeLaunch,
	"SPECIFICATION": ContentTypeSpecification,
	"COMPARISON":    ContentTypeComparison,
	"SALES":         ContentTypeSales,
	"REVIEW":        ContentTypeReview,
	"HOWTO":         ContentTypeHowTo,
	"ANALYSIS":      ContentTypeAnalysis,
	"RUMOR":         ContentTypeRumor,
	"NEWS":          ContentTypeNews,
}

// ParseContentType normalizes collaborator output ("How-to", "how to") to a known
// type. Unknown labels yield an empty type.
func ParseContentType(s string) ContentType {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(upper(s))
	if key == "SPECS" || key == "SPEC" {
		return ContentTypeSpecification
	}
	if key == "RUMOUR" {
		return ContentTypeRumor
	}
	return contentTypes[key]
}

// OutlineSection is one heading of the article outline
type OutlineSection struct {
	Heading string   `json:"heading"`
	Points  []string `json:"points,omitempty"`
}

// Outline is the structured section map produced by drafting
type Outline struct {
	Sections []OutlineSection `json:"sections"`
}

// QAIssue is one finding from review
type QAIssue struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CategorySuggestion is what the classifier proposed, whether or not it was applied
type CategorySuggestion struct {
	Label         string `json:"label"`
	CategoryID    *uint  `json:"category_id,omitempty"`
	SubcategoryID *uint  `json:"subcategory_id,omitempty"`
}

// Annotations is the article's outline plus the notes later stages attach to it.
// It is stored as one JSON column.
type Annotations struct {
	Outline            *Outline            `json:"outline,omitempty"`
	QAIssues           []QAIssue           `json:"qa_issues,omitempty"`
	CategorySuggestion *CategorySuggestion `json:"category_suggestion,omitempty"`
}

// Merge folds patch into a. Outline and suggestion are replaced when present,
// QA issues are appended without repeating an identical type+message pair.
func (a Annotations) Merge(patch Annotations) Annotations {
	out := a
	if patch.Outline != nil {
		out.Outline = patch.Outline
	}
	if patch.CategorySuggestion != nil {
		out.CategorySuggestion = patch.CategorySuggestion
	}
	if len(patch.QAIssues) > 0 {
		seen := make(map[QAIssue]struct{}, len(a.QAIssues))
		merged := make([]QAIssue, 0, len(a.QAIssues)+len(patch.QAIssues))
		for _, issue := range a.QAIssues {
			seen[issue] = struct{}{}
			merged = append(merged, issue)
		}
		for _, issue := range patch.QAIssues {
			if _, ok := seen[issue]; ok {
				continue
			}
			seen[issue] = struct{}{}
			merged = append(merged, issue)
		}
		out.QAIssues = merged
	}
	return out
}

func (a Annotations) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	return string(b), err
}

func (a *Annotations) Scan(value interface{}) error {
	*a = Annotations{}
	return scanJSON(value, a)
}

// Article is the single authored output for a topic
type Article struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	TopicID         uint        `gorm:"uniqueIndex;not null" json:"topic_id"`
	Topic           *Topic      `gorm:"foreignKey:TopicID" json:"-"`
	Slug            string      `gorm:"uniqueIndex;not null" json:"slug"`
	Title           string      `gorm:"not null" json:"title"`
	TLDR            string      `gorm:"type:text" json:"tl_dr"`
	BodyHTML        string      `gorm:"type:text" json:"body_html"`
	FAQHTML         string      `gorm:"type:text" json:"faq_html"`
	Outline         Annotations `gorm:"type:text" json:"outline_json"`
	MetaTitle       string      `json:"meta_title"`
	MetaDescription string      `json:"meta_description"`
	Keywords        StringSlice `gorm:"type:text" json:"keywords"`
	ContentType     ContentType `json:"content_type,omitempty"`
	CategoryID      *uint       `gorm:"index" json:"category_id"`
	SubcategoryID   *uint       `gorm:"index" json:"subcategory_id"`
	PublishedAt     *time.Time  `json:"published_at"`
	Citations       []Citation  `gorm:"foreignKey:ArticleID" json:"citations,omitempty"`
	CreatedAt       time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPublished reports whether the article is visible
func (a *Article) IsPublished() bool {
	return a.PublishedAt != nil
}

// Citation is an excerpt captured from a source for an article
type Citation struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ArticleID  uint       `gorm:"not null;uniqueIndex:idx_citation_article_url" json:"article_id"`
	SourceURL  string     `gorm:"not null;uniqueIndex:idx_citation_article_url" json:"source_url"`
	Title      string     `json:"title,omitempty"`
	Quote      string     `gorm:"type:text" json:"quote"`
	SourceType SourceKind `json:"source_type"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
