package database

import (
	"gorm.io/gorm"

	"github.com/noah-isme/gema-homework-api/internal/models"
)

// Migrate creates or updates the homework tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.HomeworkAssignment{},
		&models.HomeworkTask{},
		&models.HomeworkTaskVocabWord{},
	)
}
