package database

import "github.com/morroware/FEC-STL-sub000/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Order matters for AutoMigrate: referenced tables come first.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Category{},
		&models.Model{},
		&models.ModelFile{},
		&models.ModelPhoto{},
		&models.Favorite{},
	}
}
