package audit

import (
	"fmt"
	"strings"

	"github.com/newsroom-engine/internal/models"
)

// Success builds a SUCCESS entry
func Success(action models.AuditAction, topicID uint, message string) *models.AuditLogEntry {
	return newEntry(action, topicID, models.AuditMeta{Status: models.AuditSuccess, Message: message})
}

// Failure builds a FAILED entry carrying the cause
func Failure(action models.AuditAction, topicID uint, err error) *models.AuditLogEntry {
	meta := models.AuditMeta{Status: models.AuditFailed}
	if err != nil {
		meta.Error = err.Error()
	}
	return newEntry(action, topicID, meta)
}

func newEntry(action models.AuditAction, topicID uint, meta models.AuditMeta) *models.AuditLogEntry {
	entry := &models.AuditLogEntry{Action: action, Meta: meta}
	if topicID != 0 {
		id := topicID
		entry.TopicID = &id
	}
	return entry
}

// Group names a set of actions used to filter the log
type Group string

const (
	GroupAll       Group = "all"
	GroupDiscovery Group = "discovery"
	GroupEditorial Group = "editorial"
)

// editorialActions are written by operator actions and pipeline stages
var editorialActions = []models.AuditAction{
	models.AuditApprove,
	models.AuditCollect,
	models.AuditDraft,
	models.AuditReview,
	models.AuditCategorize,
	models.AuditPublish,
	models.AuditUnpublish,
	models.AuditDisapprove,
	models.AuditMarkDuplicate,
	models.AuditDeleteTopic,
	models.AuditManualCreation,
}

// GroupActions resolves a group name to the actions it covers. GroupAll and ""
// return nil, meaning no filter.
func GroupActions(group string) ([]models.AuditAction, error) {
	switch Group(strings.ToLower(strings.TrimSpace(group))) {
	case "", GroupAll:
		return nil, nil
	case GroupDiscovery:
		return models.DiscoveryActions, nil
	case GroupEditorial:
		return editorialActions, nil
	default:
		return nil, fmt.Errorf("unknown audit group %q (use all, discovery or editorial)", group)
	}
}
