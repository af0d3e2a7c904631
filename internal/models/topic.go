package models

import (
	"time"
)

// TopicStatus represents where a topic is in the editorial pipeline
type TopicStatus string

const (
	TopicStatusNew         TopicStatus = "NEW"
	TopicStatusApproved    TopicStatus = "APPROVED"
	TopicStatusProcessing  TopicStatus = "PROCESSING"
	TopicStatusCollected   TopicStatus = "COLLECTED"
	TopicStatusDrafted     TopicStatus = "DRAFTED"
	TopicStatusAssigned    TopicStatus = "ASSIGNED"
	TopicStatusReady       TopicStatus = "READY"
	TopicStatusPublished   TopicStatus = "PUBLISHED"
	TopicStatusDisapproved TopicStatus = "DISAPPROVED"
	TopicStatusDuplicate   TopicStatus = "DUPLICATE"
)

// AllTopicStatuses lists every status in pipeline order
var AllTopicStatuses = []TopicStatus{
	TopicStatusNew,
	TopicStatusApproved,
	TopicStatusProcessing,
	TopicStatusCollected,
	TopicStatusDrafted,
	TopicStatusAssigned,
	TopicStatusReady,
	TopicStatusPublished,
	TopicStatusDisapproved,
	TopicStatusDuplicate,
}

// ParseTopicStatus validates a status string (case-insensitive)
func ParseTopicStatus(s string) (TopicStatus, bool) {
	for _, st := range AllTopicStatuses {
		if string(st) == upper(s) {
			return st, true
		}
	}
	return "", false
}

// Topic is a distinct real-world subject tracked through the pipeline
type Topic struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	ExternalID string      `gorm:"uniqueIndex;size:36;not null" json:"external_id"` // Durable identity, also the vector point id
	Slug       string      `gorm:"uniqueIndex;not null" json:"slug"`
	Title      string      `gorm:"not null" json:"title"`
	Status     TopicStatus `gorm:"index;not null;default:'NEW'" json:"status"`
	Sources    []Source    `gorm:"foreignKey:TopicID" json:"sources,omitempty"`
	Article    *Article    `gorm:"foreignKey:TopicID" json:"article,omitempty"`
	CreatedAt  time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// ApprovedSources returns the sources an operator selected
func (t *Topic) ApprovedSources() []Source {
	var out []Source
	for _, s := range t.Sources {
		if s.Approved {
			out = append(out, s)
		}
	}
	return out
}

// SourceURLs returns the raw URLs of every source on the topic
func (t *Topic) SourceURLs() map[string]struct{} {
	urls := make(map[string]struct{}, len(t.Sources))
	for _, s := range t.Sources {
		urls[s.URL] = struct{}{}
	}
	return urls
}
