package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatmallu/client/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gorm stores slots in the state_slots table of a gorm database.
type Gorm struct {
	db *gorm.DB
}

// NewGorm migrates the slot table and returns the backend.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&models.Slot{}); err != nil {
		return nil, fmt.Errorf("migrate state_slots: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Get(ctx context.Context, key string) (string, bool, error) {
	var slot models.Slot
	err := g.db.WithContext(ctx).Where("key = ?", key).First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return slot.Value, true, nil
}

func (g *Gorm) Set(ctx context.Context, key, value string) error {
	slot := models.Slot{Key: key, Value: value}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&slot).Error
}

func (g *Gorm) Delete(ctx context.Context, key string) error {
	return g.db.WithContext(ctx).Where("key = ?", key).Delete(&models.Slot{}).Error
}

func (g *Gorm) Scan(ctx context.Context, prefix string) (map[string]string, error) {
	var slots []models.Slot
	if err := g.db.WithContext(ctx).Where("key LIKE ?", likePrefix(prefix)).Find(&slots).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(slots))
	for _, s := range slots {
		// LIKE is case-insensitive on some collations.
		if strings.HasPrefix(s.Key, prefix) {
			out[s.Key] = s.Value
		}
	}
	return out, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
