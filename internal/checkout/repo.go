package checkout

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookhavenhq/bookhaven-backend/pkg/db/models"
)

// BookRepository loads catalog copies for cart pricing and settlement.
type BookRepository interface {
	FindBooksByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Book, error)
}

type bookRepository struct {
	db *gorm.DB
}

// NewBookRepository builds a gorm-backed BookRepository.
func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) FindBooksByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Book, error) {
	var books []models.Book
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&books).Error
	if err != nil {
		return nil, err
	}
	return books, nil
}
