package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/iroosevelt/nerderland-live/internal/domain"
	"github.com/iroosevelt/nerderland-live/pkg/log"
)

// GormParticipantRepository implements ParticipantRepository using GORM.
type GormParticipantRepository struct {
	db *gorm.DB
}

// NewGormParticipantRepository creates a new GORM-based participant repository.
func NewGormParticipantRepository(db *gorm.DB) *GormParticipantRepository {
	return &GormParticipantRepository{db: db}
}

// Exists reports whether the user holds a participant record for the stream.
func (r *GormParticipantRepository) Exists(ctx context.Context, streamID string, userID int64) (bool, error) {
	l := log.Ctx(ctx)

	var count int64
	result := r.db.WithContext(ctx).Model(&domain.StreamParticipantModel{}).
		Where("stream_id = ? AND user_id = ?", streamID, userID).
		Count(&count)
	if result.Error != nil {
		l.Error().Err(result.Error).
			Str(log.FieldStreamID, streamID).
			Int64(log.FieldUserID, userID).
			Msg("failed to check participant record")
		return false, result.Error
	}
	return count > 0, nil
}
