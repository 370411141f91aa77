package storage

import (
	"gorm.io/gorm"
)

// Turn is one stored conversation turn.
type Turn struct {
	gorm.Model
	ChatID  string `gorm:"index;not null"`
	Role    string `gorm:"size:16;not null"`
	Content string
}
