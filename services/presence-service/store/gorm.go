package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"officehub/services/presence-service/models"
)

// GormStore reads and writes presence columns on the users table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Create inserts a user. New users start offline.
func (s *GormStore) Create(ctx context.Context, rec UserRecord) error {
	user := models.User{
		ID:         rec.ID,
		Name:       rec.Name,
		IsOnline:   rec.IsOnline,
		LastActive: rec.LastActive.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, userID string) (*UserRecord, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rec := toRecord(user)
	return &rec, nil
}

func (s *GormStore) Update(ctx context.Context, userID string, patch Patch) error {
	updates := map[string]any{"is_online": patch.IsOnline}
	if patch.LastActive != nil {
		updates["last_active"] = patch.LastActive.UTC()
	}

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update presence: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Query(ctx context.Context, filter Filter) ([]UserRecord, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})

	if filter.Online != nil {
		query = query.Where("is_online = ?", *filter.Online)
	}
	if !filter.ActiveSince.IsZero() {
		query = query.Where("last_active >= ?", filter.ActiveSince.UTC())
	}

	var users []models.User
	if err := query.Order("last_active DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	records := make([]UserRecord, 0, len(users))
	for _, u := range users {
		records = append(records, toRecord(u))
	}
	return records, nil
}

func toRecord(u models.User) UserRecord {
	return UserRecord{
		ID:         u.ID,
		Name:       u.Name,
		IsOnline:   u.IsOnline,
		LastActive: u.LastActive,
	}
}
