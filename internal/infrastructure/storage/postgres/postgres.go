// internal/infrastructure/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/your-org/storefront-cart/internal/config"
	"github.com/your-org/storefront-cart/internal/infrastructure/storage"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GuestCartRecord holds one session's serialized guest cart. The payload is
// the same JSON blob the other backends store; the table is a key-value
// store with an expiry column, not a relational cart model.
type GuestCartRecord struct {
	Key       string    `gorm:"primaryKey;size:255"`
	Payload   string    `gorm:"type:text;not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the table name
func (GuestCartRecord) TableName() string {
	return "guest_cart_records"
}

// Store is the Postgres-backed storage.Store, for deployments that prefer
// durable guest carts over Redis.
type Store struct {
	db *gorm.DB
}

// NewConnection opens the Postgres connection and runs the schema migration.
func NewConnection(cfg *config.Config) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Silent)
	if cfg.IsDevelopment() {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseDSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := db.AutoMigrate(&GuestCartRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate guest cart schema: %w", err)
	}

	return db, nil
}

// NewStore wraps a gorm handle as a storage.Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get retrieves a value by key. Expired rows read as missing and are
// deleted opportunistically.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var record GuestCartRecord
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if !record.ExpiresAt.IsZero() && time.Now().After(record.ExpiresAt) {
		s.db.WithContext(ctx).Where("key = ?", key).Delete(&GuestCartRecord{})
		return "", storage.ErrNotFound
	}

	return record.Payload, nil
}

// Set stores a value under key with the given TTL.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	record := GuestCartRecord{
		Key:     key,
		Payload: value,
	}
	if ttl > 0 {
		record.ExpiresAt = time.Now().Add(ttl)
	}

	return s.db.WithContext(ctx).
		Where("key = ?", key).
		Assign(map[string]interface{}{
			"payload":    record.Payload,
			"expires_at": record.ExpiresAt,
		}).
		FirstOrCreate(&GuestCartRecord{Key: key}).Error
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&GuestCartRecord{}).Error
}
