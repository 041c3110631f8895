// Package repository provides persistence for player session state.
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"LinkFM/model"
)

// PlayerStateRepository persists per-guild session snapshots across
// restarts.
type PlayerStateRepository interface {
	// Upsert writes a snapshot, replacing any prior record for the guild.
	Upsert(ctx context.Context, record *model.PlayerStateRecord) error

	// Get loads the snapshot for one guild, or nil when none is stored.
	Get(ctx context.Context, guildID, botID int64) (*model.PlayerStateRecord, error)

	// Delete removes the snapshot for one guild. Missing records are not an
	// error.
	Delete(ctx context.Context, guildID, botID int64) error

	// All returns every stored snapshot for a bot identity.
	All(ctx context.Context, botID int64) ([]*model.PlayerStateRecord, error)
}

// GormPlayerStateRepository is the database-backed implementation.
type GormPlayerStateRepository struct {
	db *gorm.DB
}

// NewGormPlayerStateRepository creates a repository over an open handle.
func NewGormPlayerStateRepository(db *gorm.DB) *GormPlayerStateRepository {
	return &GormPlayerStateRepository{db: db}
}

func (r *GormPlayerStateRepository) Upsert(ctx context.Context, record *model.PlayerStateRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}, {Name: "bot_id"}},
			UpdateAll: true,
		}).
		Create(record).Error
}

func (r *GormPlayerStateRepository) Get(ctx context.Context, guildID, botID int64) (*model.PlayerStateRecord, error) {
	var record model.PlayerStateRecord
	err := r.db.WithContext(ctx).
		Where("guild_id = ? AND bot_id = ?", guildID, botID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *GormPlayerStateRepository) Delete(ctx context.Context, guildID, botID int64) error {
	return r.db.WithContext(ctx).
		Where("guild_id = ? AND bot_id = ?", guildID, botID).
		Delete(&model.PlayerStateRecord{}).Error
}

func (r *GormPlayerStateRepository) All(ctx context.Context, botID int64) ([]*model.PlayerStateRecord, error) {
	var records []*model.PlayerStateRecord
	err := r.db.WithContext(ctx).
		Where("bot_id = ?", botID).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
