package models

import (
	"strings"
	"time"
)

// SourceKind is the medium a source came from
type SourceKind string

const (
	SourceKindNews    SourceKind = "NEWS"
	SourceKindBlog    SourceKind = "BLOG"
	SourceKindSpec    SourceKind = "SPEC"
	SourceKindYouTube SourceKind = "YOUTUBE"
)

// ParseSourceKind maps loose labels onto a kind, defaulting to NEWS
func ParseSourceKind(s string) SourceKind {
	switch upper(s) {
	case "BLOG":
		return SourceKindBlog
	case "SPEC", "SPECS", "SPECIFICATION":
		return SourceKindSpec
	case "YOUTUBE", "VIDEO":
		return SourceKindYouTube
	default:
		return SourceKindNews
	}
}

// Source is one external reference attached to a topic
type Source struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	TopicID     uint        `gorm:"not null;uniqueIndex:idx_source_topic_url" json:"topic_id"`
	URL         string      `gorm:"not null;uniqueIndex:idx_source_topic_url" json:"url"`
	URLNorm     string      `gorm:"not null" json:"url_norm"`
	URLHash     string      `gorm:"index;size:40;not null" json:"url_hash"` // Not unique: a URL may move between topics
	Title       string      `json:"title"`
	SourceLabel string      `json:"source_label"`
	Kind        SourceKind  `gorm:"not null;default:'NEWS'" json:"kind"`
	ContentType ContentType `json:"content_type,omitempty"`
	Approved    bool        `gorm:"not null;default:false" json:"approved"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
