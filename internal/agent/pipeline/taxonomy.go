package pipeline

import (
	"github.com/newsroom-engine/internal/apperr"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/pkg/logger"
)

// taxonomy indexes the known subcategories for id validation
type taxonomy struct {
	subcategories map[uint]models.SubcategoryOption
	categories    map[uint]struct{}
}

func newTaxonomy(options []models.SubcategoryOption) *taxonomy {
	t := &taxonomy{
		subcategories: make(map[uint]models.SubcategoryOption, len(options)),
		categories:    make(map[uint]struct{}),
	}
	for _, o := range options {
		t.subcategories[o.ID] = o
		t.categories[o.CategoryID] = struct{}{}
	}
	return t
}

// resolve trusts only ids that exist. A valid subcategory implies its
// category; a bare category is accepted when it has at least one leaf.
func (t *taxonomy) resolve(cls *models.Classification, log *logger.Logger) (*uint, *uint) {
	if cls == nil {
		return nil, nil
	}

	if cls.SubcategoryID != nil {
		if sub, ok := t.subcategories[*cls.SubcategoryID]; ok {
			subID, catID := sub.ID, sub.CategoryID
			return &catID, &subID
		}
		log.Warn().
			Uint("subcategory_id", *cls.SubcategoryID).
			Str("label", cls.Label).
			Msg("Classifier returned unknown subcategory, discarding")
	}

	if cls.CategoryID != nil {
		if _, ok := t.categories[*cls.CategoryID]; ok {
			catID := *cls.CategoryID
			return &catID, nil
		}
		log.Warn().
			Uint("category_id", *cls.CategoryID).
			Str("label", cls.Label).
			Msg("Classifier returned unknown category, discarding")
	}
	return nil, nil
}

// resolveOverrides validates operator input. Unknown ids are a validation
// error here because the operator can correct them.
func (t *taxonomy) resolveOverrides(o Overrides) (*uint, *uint, error) {
	if o.SubcategoryID != nil {
		sub, ok := t.subcategories[*o.SubcategoryID]
		if !ok {
			return nil, nil, apperr.Validation("unknown subcategory %d", *o.SubcategoryID)
		}
		if o.CategoryID != nil && *o.CategoryID != sub.CategoryID {
			return nil, nil, apperr.Validation("subcategory %d does not belong to category %d", sub.ID, *o.CategoryID)
		}
		subID, catID := sub.ID, sub.CategoryID
		return &catID, &subID, nil
	}

	if _, ok := t.categories[*o.CategoryID]; !ok {
		return nil, nil, apperr.Validation("unknown category %d", *o.CategoryID)
	}
	catID := *o.CategoryID
	return &catID, nil, nil
}
