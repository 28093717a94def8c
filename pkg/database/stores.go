package database

import (
	"context"
	"fmt"

	"duochat/config"
	"duochat/internal/repository"
	"duochat/pkg/logger"

	"gorm.io/gorm"
)

// Stores bundles the repositories of the configured driver.
type Stores struct {
	Driver   string
	Users    repository.UserRepository
	Messages repository.MessageRepository

	// exactly one of these is set
	SQL  *gorm.DB
	Bolt *repository.BoltDB
}

// OpenStores connects the store selected by cfg.StoreDriver.
func OpenStores(cfg *config.Config, l *logger.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := Connect(cfg, l)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Driver:   cfg.StoreDriver,
			Users:    repository.NewUserRepository(db),
			Messages: repository.NewMessageRepository(db),
			SQL:      db,
		}, nil
	case config.StoreBolt:
		bolt, err := repository.OpenBolt(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Driver:   cfg.StoreDriver,
			Users:    repository.NewBoltUserRepository(bolt),
			Messages: repository.NewBoltMessageRepository(bolt),
			Bolt:     bolt,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Migrate creates the SQL schema. The embedded store creates its buckets on
// open and needs nothing.
func (s *Stores) Migrate() error {
	if s.SQL == nil {
		return nil
	}
	return repository.InitSchema(s.SQL)
}

// Reset drops and recreates the SQL schema.
func (s *Stores) Reset() error {
	if s.SQL == nil {
		return fmt.Errorf("reset is only supported for %s", config.StorePostgres)
	}
	if err := repository.DropSchema(s.SQL); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return repository.InitSchema(s.SQL)
}

func (s *Stores) HealthCheck(ctx context.Context) error {
	if s.SQL != nil {
		return HealthCheck(ctx, s.SQL)
	}
	return s.Bolt.HealthCheck(ctx)
}

func (s *Stores) Close() error {
	if s.SQL != nil {
		return Close(s.SQL)
	}
	return s.Bolt.Close()
}
