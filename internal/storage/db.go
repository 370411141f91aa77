package storage

import (
	"context"
	"fmt"

	"github.com/NgigiN/ledgerbot/internal/memory"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database journals conversation turns so memory survives restarts.
type Database struct {
	db *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&Turn{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) AppendTurn(ctx context.Context, chatID string, t memory.Turn) error {
	row := Turn{ChatID: chatID, Role: t.Role.String(), Content: t.Content}
	if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit of the latest turns for chatID, oldest first.
func (d *Database) RecentTurns(ctx context.Context, chatID string, limit int) ([]memory.Turn, error) {
	var rows []Turn
	err := d.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}

	turns := make([]memory.Turn, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		role, err := memory.ParseRole(rows[i].Role)
		if err != nil {
			continue
		}
		turns = append(turns, memory.Turn{Role: role, Content: rows[i].Content})
	}
	return turns, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.Close()
}
