package models

import (
	"time"

	"gorm.io/gorm"
)

// User carries the ledger fields of an app user. Profile and credentials live
// with the auth service; only the balance and streak are owned here.
// Points and Coins are changed exclusively through atomic increments.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"size:64;not null" json:"username"`
	Points       int            `gorm:"not null;default:0" json:"points"`
	Coins        int            `gorm:"not null;default:0" json:"coins"`
	DailyStreak  int            `gorm:"not null;default:0" json:"daily_streak"`
	LastDailyAt  *time.Time     `json:"last_daily_at"`
	LastDailyKey string         `gorm:"size:10" json:"-"` // day key of LastDailyAt
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}
