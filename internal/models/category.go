package models

import "time"

// Category groups models. Its ID is a slug derived from the name at creation.
type Category struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Icon        string    `gorm:"size:64" json:"icon"`
	Description string    `gorm:"type:text" json:"description"`
	Count       int       `gorm:"not null;default:0" json:"count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
