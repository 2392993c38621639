package db

import "time"

type Conversation struct {
	ID         int64     `gorm:"primaryKey"`
	GameID     string    `gorm:"size:16;not null;uniqueIndex:idx_conversations_game_pair"`
	GiverID    int64     `gorm:"not null;index;uniqueIndex:idx_conversations_game_pair"`
	ReceiverID int64     `gorm:"not null;index;uniqueIndex:idx_conversations_game_pair"`
	CreatedAt  time.Time `gorm:"not null"`
}

type RelayMessage struct {
	ID             int64     `gorm:"primaryKey"`
	ConversationID int64     `gorm:"not null;index:idx_relay_messages_conversation_sent"`
	SenderID       int64     `gorm:"not null"`
	Body           string    `gorm:"size:500;not null"`
	SentAt         time.Time `gorm:"not null;index:idx_relay_messages_conversation_sent"`
}
