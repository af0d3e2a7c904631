package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// AuditAction names what an audit entry records
type AuditAction string

const (
	AuditTopicCreated   AuditAction = "TOPIC_CREATED"
	AuditTopicReused    AuditAction = "TOPIC_REUSED"
	AuditDiscoveryRun   AuditAction = "TOPIC_DISCOVERY_RUN"
	AuditApprove        AuditAction = "approve"
	AuditCollect        AuditAction = "collect"
	AuditDraft          AuditAction = "draft"
	AuditReview         AuditAction = "review"
	AuditCategorize     AuditAction = "categorize"
	AuditPublish        AuditAction = "publish"
	AuditUnpublish      AuditAction = "unpublish"
	AuditDisapprove     AuditAction = "disapprove"
	AuditMarkDuplicate  AuditAction = "mark_duplicate"
	AuditDeleteTopic    AuditAction = "delete_topic"
	AuditManualCreation AuditAction = "create_topic"
)

// DiscoveryActions are the actions written by discovery runs
var DiscoveryActions = []AuditAction{AuditTopicCreated, AuditTopicReused, AuditDiscoveryRun}

// AuditStatus is the outcome of an audited attempt
type AuditStatus string

const (
	AuditSuccess AuditStatus = "SUCCESS"
	AuditFailed  AuditStatus = "FAILED"
)

// AuditMeta is the structured outcome stored with every entry
type AuditMeta struct {
	Status  AuditStatus       `json:"status,omitempty"`
	Message string            `json:"message,omitempty"`
	Counts  map[string]int    `json:"counts,omitempty"`
	Details map[string]string `json:"details,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func (m AuditMeta) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *AuditMeta) Scan(value interface{}) error {
	*m = AuditMeta{}
	return scanJSON(value, m)
}

// AuditLogEntry is an append-only record of one attempt
type AuditLogEntry struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time   `gorm:"index" json:"created_at"`
	Action    AuditAction `gorm:"index;not null" json:"action"`
	TopicID   *uint       `gorm:"index" json:"topic_id,omitempty"`
	Meta      AuditMeta   `gorm:"type:text" json:"meta"`
}
