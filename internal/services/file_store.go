package services

import (
	"context"

	"github.com/freelancehub/backend/internal/models"
	"gorm.io/gorm"
)

// FileStore persists generated documents as database rows.
type FileStore struct {
	db *gorm.DB
}

func NewFileStore(db *gorm.DB) *FileStore {
	return &FileStore{db: db}
}

func (s *FileStore) Save(ctx context.Context, ownerType, ownerID, kind, filename, contentType string, data []byte) (*models.StoredFile, error) {
	file := &models.StoredFile{
		OwnerType:   ownerType,
		OwnerID:     ownerID,
		Kind:        kind,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		return nil, err
	}
	return file, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*models.StoredFile, error) {
	var file models.StoredFile
	if err := s.db.WithContext(ctx).First(&file, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &file, nil
}
