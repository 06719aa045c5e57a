// Package models contains data structures for the catalog's domain entities.
package models

import "time"

// User is a registered member of the catalog.
type User struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Username      string    `gorm:"size:20;not null;uniqueIndex" json:"username"`
	Email         string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password      string    `gorm:"size:255;not null" json:"-"`
	IsAdmin       bool      `gorm:"not null;default:false" json:"is_admin"`
	Avatar        string    `gorm:"size:255" json:"avatar"`
	Bio           string    `gorm:"type:text" json:"bio"`
	Location      string    `gorm:"size:120" json:"location"`
	ModelCount    int       `gorm:"not null;default:0" json:"model_count"`
	DownloadCount int       `gorm:"not null;default:0" json:"download_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Favorites is the set of model ids this user has favorited. It lives in
	// the favorites table and is attached on read.
	Favorites []string `gorm:"-" json:"favorites"`
}

// HasFavorite reports whether modelID is among the user's favorites.
func (u *User) HasFavorite(modelID string) bool {
	for _, id := range u.Favorites {
		if id == modelID {
			return true
		}
	}
	return false
}

// PublicProfile is the view of a user that is safe to show to other members.
type PublicProfile struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	IsAdmin       bool      `json:"is_admin"`
	Avatar        string    `json:"avatar"`
	Bio           string    `json:"bio"`
	Location      string    `json:"location"`
	ModelCount    int       `json:"model_count"`
	DownloadCount int       `json:"download_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Public strips private fields such as email and favorites.
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:            u.ID,
		Username:      u.Username,
		IsAdmin:       u.IsAdmin,
		Avatar:        u.Avatar,
		Bio:           u.Bio,
		Location:      u.Location,
		ModelCount:    u.ModelCount,
		DownloadCount: u.DownloadCount,
		CreatedAt:     u.CreatedAt,
	}
}
