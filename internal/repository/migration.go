package repository

import (
	"fmt"

	"duochat/internal/domain/message"
	"duochat/internal/domain/user"

	"gorm.io/gorm"
)

// InitSchema handles the database schema migration.
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&user.User{}, &message.Message{}, &message.Reaction{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// Partial index for unseen counters in the sidebar.
	idx := `CREATE INDEX IF NOT EXISTS idx_messages_unseen
		ON messages (sender_id, receiver_id) WHERE seen = false;`
	if err := db.Exec(idx).Error; err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// DropSchema removes every table owned by the service.
func DropSchema(db *gorm.DB) error {
	return db.Migrator().DropTable(&message.Reaction{}, &message.Message{}, &user.User{})
}
