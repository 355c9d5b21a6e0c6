package models

import "time"

// Profile is the demo entity carrying three denormalized counters. The
// counter columns are written only through the gateway.
type Profile struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id"`
	Handle        string    `gorm:"uniqueIndex;size:64;not null" json:"handle"`
	DisplayName   string    `gorm:"size:128" json:"display_name"`
	FollowerCount int64     `gorm:"not null;default:0" json:"follower_count"`
	ResponseCount int64     `gorm:"not null;default:0" json:"response_count"`
	UnreadCount   int64     `gorm:"not null;default:0" json:"unread_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }
