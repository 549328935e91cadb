package domain

import "time"

// StreamModel is the GORM model for the streams table.
type StreamModel struct {
	ID          string    `gorm:"type:varchar(64);primaryKey"`
	UserID      int64     `gorm:"index;not null"`
	Title       string    `gorm:"type:varchar(200)"`
	IsLive      bool      `gorm:"index;not null;default:false"`
	ViewerCount int       `gorm:"default:0"`
	StartedAt   time.Time `gorm:"autoCreateTime"`
	EndedAt     *time.Time
}

// TableName specifies the table name for StreamModel.
func (StreamModel) TableName() string {
	return "streams"
}

// ToDomain converts StreamModel to domain Stream.
func (m *StreamModel) ToDomain() *Stream {
	return &Stream{
		ID:          m.ID,
		UserID:      m.UserID,
		Title:       m.Title,
		IsLive:      m.IsLive,
		ViewerCount: m.ViewerCount,
		StartedAt:   m.StartedAt,
		EndedAt:     m.EndedAt,
	}
}

// StreamToModel converts domain Stream to StreamModel.
func StreamToModel(s *Stream) *StreamModel {
	return &StreamModel{
		ID:          s.ID,
		UserID:      s.UserID,
		Title:       s.Title,
		IsLive:      s.IsLive,
		ViewerCount: s.ViewerCount,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
	}
}

// UserModel is the GORM model for the users table, owned by the web app.
// This service never writes it.
type UserModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Username  string    `gorm:"type:varchar(50)"`
	Email     string    `gorm:"type:varchar(255)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		ID:        m.ID,
		Username:  m.Username,
		Email:     m.Email,
		CreatedAt: m.CreatedAt,
	}
}

// StreamParticipantModel is the GORM model for the stream_participants table.
// A row marks a user as granted bidirectional signaling rights for a stream,
// distinct from a general viewer.
type StreamParticipantModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	StreamID  string    `gorm:"type:varchar(64);index:idx_stream_user,unique;not null"`
	UserID    int64     `gorm:"index:idx_stream_user,unique;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for StreamParticipantModel.
func (StreamParticipantModel) TableName() string {
	return "stream_participants"
}
