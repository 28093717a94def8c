package repository

import (
	"context"
	"errors"
	"time"

	"duochat/internal/domain/message"
	duochat_errors "duochat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func pairScope(a, b uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a)
	}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *message.Message) error {
	return translateError(r.db.WithContext(ctx).Create(m).Error)
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).Preload("Reactions").Where("id = ?", id).First(&m).Error
	if err != nil {
		return message.Message{}, translateError(err)
	}
	return m, nil
}

func (r *PostgresMessageRepository) ListThread(ctx context.Context, a, b uuid.UUID) ([]message.Message, error) {
	var messages []message.Message
	err := r.db.WithContext(ctx).
		Scopes(pairScope(a, b)).
		Preload("Reactions").
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *PostgresMessageRepository) MarkThreadSeen(ctx context.Context, senderID, receiverID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND seen = ?", senderID, receiverID, false).
		Updates(map[string]interface{}{"seen": true, "updated_at": time.Now()})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *PostgresMessageRepository) MarkSeen(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"seen": true, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return duochat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresMessageRepository) Update(ctx context.Context, m *message.Message) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&message.Message{}).
			Where("id = ? AND revision = ?", m.ID, m.Revision).
			Updates(map[string]interface{}{
				"text":       m.Text,
				"edited":     m.Edited,
				"revision":   gorm.Expr("revision + 1"),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&message.Message{}).Where("id = ?", m.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return duochat_errors.ErrNotFound
			}
			return duochat_errors.ErrConflict
		}

		var seen []bool
		if err := tx.Model(&message.Message{}).Where("id = ?", m.ID).Pluck("seen", &seen).Error; err != nil {
			return err
		}
		if len(seen) == 1 {
			m.Seen = seen[0]
		}

		if err := tx.Where("message_id = ?", m.ID).Delete(&message.Reaction{}).Error; err != nil {
			return err
		}
		if len(m.Reactions) == 0 {
			return nil
		}
		for i := range m.Reactions {
			m.Reactions[i].MessageID = m.ID
		}
		return tx.Create(&m.Reactions).Error
	})
	if err != nil {
		if errors.Is(err, duochat_errors.ErrNotFound) || errors.Is(err, duochat_errors.ErrConflict) {
			return err
		}
		return translateError(err)
	}
	m.Revision++
	return nil
}

func (r *PostgresMessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&message.Reaction{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&message.Message{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return duochat_errors.ErrNotFound
		}
		return nil
	})
}

func (r *PostgresMessageRepository) CountUnseen(ctx context.Context, senderID, receiverID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND seen = ?", senderID, receiverID, false).
		Count(&count).Error
	return count, err
}

func (r *PostgresMessageRepository) Latest(ctx context.Context, a, b uuid.UUID) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Scopes(pairScope(a, b)).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		return message.Message{}, translateError(err)
	}
	return m, nil
}
