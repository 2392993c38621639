package db

import "time"

type Game struct {
	ID         string    `gorm:"primaryKey;size:16"`
	OwnerID    int64     `gorm:"index;not null"`
	Status     string    `gorm:"size:16;not null;default:active;index"`
	CreatedAt  time.Time `gorm:"not null"`
	FinishedAt *time.Time
}
