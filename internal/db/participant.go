package db

import "time"

type Participant struct {
	ID          uint   `gorm:"primaryKey"`
	GameID      string `gorm:"size:16;not null;uniqueIndex:idx_participants_game_user"`
	UserID      int64  `gorm:"not null;index;uniqueIndex:idx_participants_game_user"`
	DisplayName string `gorm:"size:50;not null"`
	AssignedTo  *int64
	JoinedAt    time.Time `gorm:"not null"`
}
