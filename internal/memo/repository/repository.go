// Package repository implements the memo store gateway on gorm.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	memodomain "github.com/halfnote/halfnote/internal/memo/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormRepository struct {
	db *gorm.DB
}

// Provide builds the gorm-backed memo repository.
func Provide(db *gorm.DB) memodomain.Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Insert(ctx context.Context, memo *memodomain.Memo) error {
	now := time.Now().UTC()
	if memo.CreatedAt.IsZero() {
		memo.CreatedAt = now
	}
	memo.UpdatedAt = now
	return r.db.WithContext(ctx).Create(memo).Error
}

func (r *gormRepository) FindByID(ctx context.Context, id snowflake.ID) (*memodomain.Memo, error) {
	var memo memodomain.Memo
	err := r.db.WithContext(ctx).First(&memo, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, memodomain.ErrMemoNotFound
	}
	if err != nil {
		return nil, err
	}
	return &memo, nil
}

func (r *gormRepository) FindPending(ctx context.Context, limit int) ([]memodomain.Memo, error) {
	var memos []memodomain.Memo
	err := r.db.WithContext(ctx).
		Where("enrichment_processed_at IS NULL AND deleted_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&memos).Error
	if err != nil {
		return nil, err
	}
	return memos, nil
}

func (r *gormRepository) MarkProcessed(ctx context.Context, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&memodomain.Memo{}).
		Where("id IN ? AND enrichment_processed_at IS NULL", ids).
		Updates(map[string]any{
			"enrichment_processed_at": at,
			"updated_at":              time.Now().UTC(),
		}).Error
}

func (r *gormRepository) ResetProcessed(ctx context.Context, id snowflake.ID) error {
	result := r.db.WithContext(ctx).
		Model(&memodomain.Memo{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"enrichment_processed_at": nil,
			"updated_at":              time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return memodomain.ErrMemoNotFound
	}
	return nil
}

func (r *gormRepository) DeleteEnrichmentRows(ctx context.Context, memoID snowflake.ID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("memo_id = ?", memoID).Delete(&memodomain.MediaItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("memo_id = ?", memoID).Delete(&memodomain.ReminderItem{}).Error; err != nil {
			return err
		}
		return tx.Where("memo_id = ?", memoID).Delete(&memodomain.ShoppingListItem{}).Error
	})
}

func (r *gormRepository) DeleteMediaItem(ctx context.Context, memoID snowflake.ID) error {
	result := r.db.WithContext(ctx).
		Where("memo_id = ?", memoID).
		Delete(&memodomain.MediaItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return memodomain.ErrMediaItemNotFound
	}
	return nil
}

func (r *gormRepository) UpsertMediaItem(ctx context.Context, item *memodomain.MediaItem) error {
	item.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "memo_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "media_type", "external_id", "release_year", "updated_at",
		}),
	}).Create(item).Error
}

func (r *gormRepository) UpsertReminderItem(ctx context.Context, item *memodomain.ReminderItem) error {
	item.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "memo_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"action", "due_at", "recurrence", "updated_at",
		}),
	}).Create(item).Error
}

func (r *gormRepository) ReplaceShoppingItems(ctx context.Context, memoID snowflake.ID, items []memodomain.ShoppingListItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("memo_id = ?", memoID).Delete(&memodomain.ShoppingListItem{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}
