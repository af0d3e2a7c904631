package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/storage"
	"github.com/newsroom-engine/pkg/slug"
)

// Repository implements storage.Repository on gorm, backed by SQLite or Postgres
type Repository struct {
	db *gorm.DB
}

// New opens the database named by driver ("sqlite" or "postgres")
func New(driver, dsn string) (*Repository, error) {
	var dialector gorm.Dialector

	switch driver {
	case "", "sqlite":
		// Ensure directory exists
		dir := filepath.Dir(dsn)
		if dir != "." && dir != "" && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "" || driver == "sqlite" {
		// SQLite allows a single writer; serialize through one connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.Topic{},
		&models.Source{},
		&models.Article{},
		&models.Citation{},
		&models.Category{},
		&models.Subcategory{},
		&models.AuditLogEntry{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn inside a database transaction
func (r *Repository) Transaction(ctx context.Context, fn func(tx storage.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// Topic operations

func (r *Repository) CreateTopic(ctx context.Context, topic *models.Topic) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(topic).Error
}

func (r *Repository) GetTopic(ctx context.Context, id uint) (*models.Topic, error) {
	var topic models.Topic
	err := r.db.WithContext(ctx).
		Preload("Sources", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Article").
		First(&topic, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &topic, nil
}

func (r *Repository) GetTopicByExternalID(ctx context.Context, externalID string) (*models.Topic, error) {
	var topic models.Topic
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&topic).Error; err != nil {
		return nil, notFound(err)
	}
	return &topic, nil
}

func (r *Repository) GetTopicBySlug(ctx context.Context, s string) (*models.Topic, error) {
	var topic models.Topic
	if err := r.db.WithContext(ctx).Where("slug = ?", s).First(&topic).Error; err != nil {
		return nil, notFound(err)
	}
	return &topic, nil
}

var topicOrderColumns = map[string]bool{"created_at": true, "updated_at": true, "id": true}

func (r *Repository) ListTopics(ctx context.Context, filter storage.TopicFilter) ([]*models.Topic, error) {
	var topics []*models.Topic
	query := r.db.WithContext(ctx).Model(&models.Topic{})

	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}

	orderCol := "created_at"
	if topicOrderColumns[filter.OrderBy] {
		orderCol = filter.OrderBy
	}
	if filter.OrderDesc {
		query = query.Order(orderCol + " DESC").Order("id DESC")
	} else {
		query = query.Order(orderCol + " ASC").Order("id ASC")
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&topics).Error; err != nil {
		return nil, err
	}
	return topics, nil
}

func (r *Repository) TransitionTopicStatus(ctx context.Context, id uint, from []models.TopicStatus, to models.TopicStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.Topic{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Topic{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return storage.ErrNotFound
	}
	return storage.ErrStaleStatus
}

func (r *Repository) DeleteTopic(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var topic models.Topic
		if err := tx.Select("id").First(&topic, id).Error; err != nil {
			return notFound(err)
		}

		articleIDs := tx.Model(&models.Article{}).Select("id").Where("topic_id = ?", id)
		if err := tx.Where("article_id IN (?)", articleIDs).Delete(&models.Citation{}).Error; err != nil {
			return fmt.Errorf("delete citations: %w", err)
		}
		if err := tx.Where("topic_id = ?", id).Delete(&models.Article{}).Error; err != nil {
			return fmt.Errorf("delete article: %w", err)
		}
		if err := tx.Where("topic_id = ?", id).Delete(&models.Source{}).Error; err != nil {
			return fmt.Errorf("delete sources: %w", err)
		}
		return tx.Delete(&models.Topic{}, id).Error
	})
}

// Source operations

// AddSources inserts sources, skipping any (topic, url) pair already stored.
// It returns how many rows were inserted.
func (r *Repository) AddSources(ctx context.Context, sources []*models.Source) (int, error) {
	added := 0
	for _, src := range sources {
		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "topic_id"}, {Name: "url"}},
				DoNothing: true,
			}).
			Create(src)
		if res.Error != nil {
			return added, res.Error
		}
		added += int(res.RowsAffected)
	}
	return added, nil
}

// FindTopicsBySourceHash maps each known hash to the oldest topic holding it
func (r *Repository) FindTopicsBySourceHash(ctx context.Context, hashes []string) (map[string]uint, error) {
	found := make(map[string]uint)
	if len(hashes) == 0 {
		return found, nil
	}

	var rows []struct {
		URLHash string
		TopicID uint
	}
	err := r.db.WithContext(ctx).
		Model(&models.Source{}).
		Select("url_hash, MIN(topic_id) AS topic_id").
		Where("url_hash IN ?", hashes).
		Group("url_hash").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		found[row.URLHash] = row.TopicID
	}
	return found, nil
}

// SetSourceApproval approves exactly the given URLs on the topic and clears the
// rest. It returns how many sources matched.
func (r *Repository) SetSourceApproval(ctx context.Context, topicID uint, urls []string) (int, error) {
	matched := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Source{}).
			Where("topic_id = ?", topicID).
			Update("approved", false).Error; err != nil {
			return err
		}
		if len(urls) == 0 {
			return nil
		}
		res := tx.Model(&models.Source{}).
			Where("topic_id = ? AND url IN ?", topicID, urls).
			Update("approved", true)
		if res.Error != nil {
			return res.Error
		}
		matched = int(res.RowsAffected)
		return nil
	})
	return matched, err
}

// Article operations

func (r *Repository) GetArticle(ctx context.Context, id uint) (*models.Article, error) {
	var article models.Article
	if err := r.db.WithContext(ctx).Preload("Topic").First(&article, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &article, nil
}

func (r *Repository) GetArticleByTopic(ctx context.Context, topicID uint) (*models.Article, error) {
	var article models.Article
	if err := r.db.WithContext(ctx).Where("topic_id = ?", topicID).First(&article).Error; err != nil {
		return nil, notFound(err)
	}
	return &article, nil
}

// FindOrCreateArticle inserts article unless the topic already has one, and
// returns the stored row plus whether it was created.
func (r *Repository) FindOrCreateArticle(ctx context.Context, article *models.Article) (*models.Article, bool, error) {
	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "topic_id"}},
			DoNothing: true,
		}).
		Create(article)
	if res.Error != nil {
		return nil, false, res.Error
	}

	stored, err := r.GetArticleByTopic(ctx, article.TopicID)
	if err != nil {
		return nil, false, err
	}
	return stored, res.RowsAffected == 1, nil
}

func (r *Repository) UpdateArticle(ctx context.Context, article *models.Article) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(article).Error
}

func (r *Repository) SetArticlePublishedAt(ctx context.Context, id uint, at *time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("id = ?", id).
		Update("published_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Citation operations

func (r *Repository) ListCitations(ctx context.Context, articleID uint) ([]*models.Citation, error) {
	var citations []*models.Citation
	if err := r.db.WithContext(ctx).
		Where("article_id = ?", articleID).
		Order("id ASC").
		Find(&citations).Error; err != nil {
		return nil, err
	}
	return citations, nil
}

// AddCitation inserts the citation unless the article already cites that URL
func (r *Repository) AddCitation(ctx context.Context, citation *models.Citation) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "article_id"}, {Name: "source_url"}},
			DoNothing: true,
		}).
		Create(citation)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Taxonomy operations

func (r *Repository) ListSubcategories(ctx context.Context) ([]models.SubcategoryOption, error) {
	var options []models.SubcategoryOption
	err := r.db.WithContext(ctx).
		Table("subcategories").
		Select("subcategories.id, subcategories.name, subcategories.category_id, categories.name AS category_name").
		Joins("JOIN categories ON categories.id = subcategories.category_id").
		Order("categories.name ASC, subcategories.name ASC").
		Scan(&options).Error
	if err != nil {
		return nil, err
	}
	return options, nil
}

func (r *Repository) GetSubcategory(ctx context.Context, id uint) (*models.Subcategory, error) {
	var sub models.Subcategory
	if err := r.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

// SeedTaxonomy creates missing categories and subcategories, matching on slug
func (r *Repository) SeedTaxonomy(ctx context.Context, categories []models.Category) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range categories {
			cat := models.Category{Name: c.Name, Slug: slug.From(c.Name)}
			if err := tx.Where(models.Category{Slug: cat.Slug}).
				Attrs(models.Category{Name: cat.Name}).
				FirstOrCreate(&cat).Error; err != nil {
				return fmt.Errorf("seed category %s: %w", c.Name, err)
			}

			for _, s := range c.Subcategories {
				sub := models.Subcategory{
					CategoryID: cat.ID,
					Name:       s.Name,
					Slug:       cat.Slug + "-" + slug.From(s.Name),
				}
				if err := tx.Where(models.Subcategory{Slug: sub.Slug}).
					Attrs(models.Subcategory{CategoryID: cat.ID, Name: sub.Name}).
					FirstOrCreate(&sub).Error; err != nil {
					return fmt.Errorf("seed subcategory %s: %w", s.Name, err)
				}
			}
		}
		return nil
	})
}

// Audit operations

func (r *Repository) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *Repository) ListAudit(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditLogEntry, error) {
	var entries []*models.AuditLogEntry
	query := r.db.WithContext(ctx).Model(&models.AuditLogEntry{})

	if filter.TopicID != nil {
		query = query.Where("topic_id = ?", *filter.TopicID)
	}
	if len(filter.Actions) > 0 {
		query = query.Where("action IN ?", filter.Actions)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", *filter.Since)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	if err := query.Order("created_at DESC").Order("id DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Ensure Repository implements storage.Repository
var _ storage.Repository = (*Repository)(nil)
