package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/diewo77/go-immo/internal/models"
	"gorm.io/gorm"
)

// UserReader looks up agency members.
type UserReader interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	// AgencyOf returns the owner ID the user's agency data is stored under.
	AgencyOf(ctx context.Context, userID uint) (uint, error)
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

func (s *GormStore) AgencyOf(ctx context.Context, userID uint) (uint, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.AgencyID(), nil
}
