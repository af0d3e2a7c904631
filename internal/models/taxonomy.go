package models

// Category is a top-level taxonomy node
type Category struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	Name          string        `gorm:"not null" json:"name"`
	Slug          string        `gorm:"uniqueIndex;not null" json:"slug"`
	Subcategories []Subcategory `gorm:"foreignKey:CategoryID" json:"subcategories,omitempty"`
}

// Subcategory is a taxonomy leaf articles are assigned to
type Subcategory struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	CategoryID uint   `gorm:"index;not null" json:"category_id"`
	Name       string `gorm:"not null" json:"name"`
	Slug       string `gorm:"uniqueIndex;not null" json:"slug"`
}
