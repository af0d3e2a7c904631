package storage

import (
	"context"
	"errors"
	"time"

	"github.com/newsroom-engine/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")
	// ErrStaleStatus is returned when a status compare-and-swap finds the topic
	// in a status other than the expected ones
	ErrStaleStatus = errors.New("topic status changed concurrently")
)

// Repository defines the interface for data persistence
type Repository interface {
	// Topic operations
	CreateTopic(ctx context.Context, topic *models.Topic) error
	GetTopic(ctx context.Context, id uint) (*models.Topic, error)
	GetTopicByExternalID(ctx context.Context, externalID string) (*models.Topic, error)
	GetTopicBySlug(ctx context.Context, slug string) (*models.Topic, error)
	ListTopics(ctx context.Context, filter TopicFilter) ([]*models.Topic, error)
	// TransitionTopicStatus sets status to `to` only if the topic is currently in one of `from`
	TransitionTopicStatus(ctx context.Context, id uint, from []models.TopicStatus, to models.TopicStatus) error
	// DeleteTopic removes the topic and cascades to its citations, article and sources
	DeleteTopic(ctx context.Context, id uint) error

	// Source operations
	AddSources(ctx context.Context, sources []*models.Source) (int, error)
	FindTopicsBySourceHash(ctx context.Context, hashes []string) (map[string]uint, error)
	SetSourceApproval(ctx context.Context, topicID uint, urls []string) (int, error)

	// Article operations
	GetArticle(ctx context.Context, id uint) (*models.Article, error)
	GetArticleByTopic(ctx context.Context, topicID uint) (*models.Article, error)
	FindOrCreateArticle(ctx context.Context, article *models.Article) (*models.Article, bool, error)
	UpdateArticle(ctx context.Context, article *models.Article) error
	SetArticlePublishedAt(ctx context.Context, id uint, at *time.Time) error

	// Citation operations
	ListCitations(ctx context.Context, articleID uint) ([]*models.Citation, error)
	AddCitation(ctx context.Context, citation *models.Citation) (bool, error)

	// Taxonomy operations
	ListSubcategories(ctx context.Context) ([]models.SubcategoryOption, error)
	GetSubcategory(ctx context.Context, id uint) (*models.Subcategory, error)
	SeedTaxonomy(ctx context.Context, categories []models.Category) error

	// Audit operations
	AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]*models.AuditLogEntry, error)

	// Transaction runs fn against a repository bound to one database transaction
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	// Maintenance
	Close() error
	Migrate() error
}

// TopicFilter defines filtering options for topics
type TopicFilter struct {
	Statuses  []models.TopicStatus
	Limit     int
	Offset    int
	OrderBy   string // "created_at", "updated_at", "id"
	OrderDesc bool
}

// AuditFilter defines filtering options for audit entries
type AuditFilter struct {
	TopicID *uint
	Actions []models.AuditAction
	Since   *time.Time
	Limit   int
}

// DefaultTopicFilter returns a filter with sensible defaults
func DefaultTopicFilter() TopicFilter {
	return TopicFilter{
		Limit:     50,
		OrderBy:   "created_at",
		OrderDesc: true,
	}
}

// DefaultAuditFilter returns the most recent entries
func DefaultAuditFilter() AuditFilter {
	return AuditFilter{Limit: 100}
}
