package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asepsopiyan/keris-lite/internal/model"
)

type IngestRecordRepository struct {
	db *gorm.DB
}

func NewIngestRecordRepository(db *gorm.DB) *IngestRecordRepository {
	return &IngestRecordRepository{db: db}
}

// Upsert inserts the record or updates the existing row for its source file.
func (r *IngestRecordRepository) Upsert(record *model.IngestRecord) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_file"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "chunks", "dimension", "error", "updated_at"}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("upsert ingest record failed: %w", err)
	}
	return nil
}

func (r *IngestRecordRepository) List() ([]model.IngestRecord, error) {
	var list []model.IngestRecord
	if err := r.db.Order("source_file ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list ingest records failed: %w", err)
	}
	return list, nil
}

func (r *IngestRecordRepository) GetBySourceFile(sourceFile string) (*model.IngestRecord, error) {
	var record model.IngestRecord
	if err := r.db.Where("source_file = ?", sourceFile).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ingest record failed: %w", err)
	}
	return &record, nil
}

// DeleteAll clears the ledger ahead of a full reindex.
func (r *IngestRecordRepository) DeleteAll() error {
	if err := r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.IngestRecord{}).Error; err != nil {
		return fmt.Errorf("delete ingest records failed: %w", err)
	}
	return nil
}
