package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/iroosevelt/nerderland-live/internal/domain"
	"github.com/iroosevelt/nerderland-live/pkg/log"
)

// GormStreamRepository implements StreamRepository using GORM.
type GormStreamRepository struct {
	db *gorm.DB
}

// NewGormStreamRepository creates a new GORM-based stream repository.
func NewGormStreamRepository(db *gorm.DB) *GormStreamRepository {
	return &GormStreamRepository{db: db}
}

// GetByID retrieves a stream record by its token.
func (r *GormStreamRepository) GetByID(ctx context.Context, id string) (*domain.Stream, error) {
	l := log.Ctx(ctx)

	var model domain.StreamModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrStreamNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldStreamID, id).Msg("failed to get stream by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// SetViewerCount writes the current viewer count for a stream.
func (r *GormStreamRepository) SetViewerCount(ctx context.Context, id string, count int) error {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&domain.StreamModel{}).
		Where("id = ?", id).
		Update("viewer_count", count)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldStreamID, id).Msg("failed to update viewer count")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStreamNotFound
	}
	return nil
}

// End marks a stream as ended. Only a live stream is affected; ending an
// already-ended stream reports ErrStreamNotFound.
func (r *GormStreamRepository) End(ctx context.Context, id string, endedAt time.Time) error {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&domain.StreamModel{}).
		Where("id = ? AND is_live = ?", id, true).
		Updates(map[string]interface{}{
			"is_live":      false,
			"viewer_count": 0,
			"ended_at":     endedAt,
		})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldStreamID, id).Msg("failed to end stream in db")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStreamNotFound
	}
	l.Debug().Str(log.FieldStreamID, id).Msg("stream ended in db")
	return nil
}
