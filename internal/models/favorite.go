package models

import "time"

// Favorite links a user to a model they bookmarked.
type Favorite struct {
	UserID    string    `gorm:"primaryKey;size:36" json:"user_id"`
	ModelID   string    `gorm:"primaryKey;size:36;index" json:"model_id"`
	CreatedAt time.Time `json:"created_at"`

	User  *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Model *Model `gorm:"foreignKey:ModelID;constraint:OnDelete:CASCADE" json:"-"`
}

// Stats is the catalog-wide aggregate shown on the landing page.
type Stats struct {
	TotalModels     int64 `json:"total_models"`
	TotalUsers      int64 `json:"total_users"`
	TotalDownloads  int64 `json:"total_downloads"`
	TotalCategories int64 `json:"total_categories"`
}
