package models

import (
	"html"
	"time"
)

// TrendItem is a raw candidate fetched from a trend source
type TrendItem struct {
	Title       string
	URL         string
	SourceLabel string
	Kind        SourceKind
	PublishedAt time.Time
}

// Cluster is a group of related items under one master title
type Cluster struct {
	MasterTitle string         `json:"master_title"`
	Children    []ClusterChild `json:"children"`
}

// ClusterChild is one item inside a cluster
type ClusterChild struct {
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	Kind        SourceKind  `json:"kind"`
	ContentType ContentType `json:"content_type,omitempty"`
}

// MergedTitle is the title-merge collaborator's answer
type MergedTitle struct {
	Title       string      `json:"title"`
	ContentType ContentType `json:"content_type"`
}

// Draft is the generation collaborator's output
type Draft struct {
	Title           string      `json:"title"`
	TLDR            string      `json:"tl_dr"`
	BodyHTML        string      `json:"body_html"`
	FAQHTML         string      `json:"faq_html"`
	Outline         *Outline    `json:"outline,omitempty"`
	MetaTitle       string      `json:"meta_title"`
	MetaDescription string      `json:"meta_description"`
	Keywords        []string    `json:"keywords"`
	ContentType     ContentType `json:"content_type"`
}

// IsEmpty reports a draft with nothing worth writing
func (d *Draft) IsEmpty() bool {
	return d == nil || (d.BodyHTML == "" && d.TLDR == "")
}

// PlaceholderDraft is written when generation produced nothing usable, so the
// pipeline is never blocked on a single bad answer.
func PlaceholderDraft(title string, contentType ContentType) *Draft {
	return &Draft{
		Title:           title,
		TLDR:            "Key takeaways about " + title + ".",
		BodyHTML:        "<h2>" + html.EscapeString(title) + "</h2><p>No draft generated.</p>",
		FAQHTML:         "<dl></dl>",
		MetaTitle:       title,
		MetaDescription: "Article about " + title,
		Keywords:        []string{},
		ContentType:     contentType,
	}
}

// SubcategoryOption is one leaf a classifier may choose from
type SubcategoryOption struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	CategoryID   uint   `json:"category_id"`
	CategoryName string `json:"category_name"`
}

// Classification is what the classifier returned
type Classification struct {
	Label         string `json:"label"`
	CategoryID    *uint  `json:"category_id,omitempty"`
	SubcategoryID *uint  `json:"subcategory_id,omitempty"`
}

// ScrapedPage is the content fetcher's answer for a web page
type ScrapedPage struct {
	Title string
	Text  string
}

// VectorHit is one similarity index match
type VectorHit struct {
	ID      string
	Score   float64
	Payload map[string]interface{}
}

// PayloadString reads a string field from the hit payload
func (h VectorHit) PayloadString(key string) string {
	if h.Payload == nil {
		return ""
	}
	if s, ok := h.Payload[key].(string); ok {
		return s
	}
	return ""
}
