package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugh/go-identity/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db     *gorm.DB
	sealer Sealer
}

type Option func(*GormStore)

// WithSealer encrypts token text before it reaches the tokens table.
func WithSealer(s Sealer) Option {
	return func(g *GormStore) {
		g.sealer = s
	}
}

func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	s := &GormStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GormStore) Get(ctx context.Context, userID string) (string, error) {
	var row models.Token
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("loading token: %w", err)
	}

	if s.sealer == nil {
		return row.Token, nil
	}
	token, err := s.sealer.Open(row.Token)
	if err != nil {
		return "", fmt.Errorf("opening token: %w", err)
	}
	return token, nil
}

func (s *GormStore) Put(ctx context.Context, userID, token string, expiresAt time.Time) error {
	return s.PutThen(ctx, userID, token, expiresAt, nil)
}

// PutThen upserts the row and runs then while the row is still locked, so concurrent writers
// reach then in the order their rows were written.
func (s *GormStore) PutThen(ctx context.Context, userID, token string, expiresAt time.Time, then func() error) error {
	stored := token
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(token)
		if err != nil {
			return fmt.Errorf("sealing token: %w", err)
		}
		stored = sealed
	}

	row := models.Token{
		ID:        userID,
		Token:     stored,
		ExpiresAt: expiresAt.UTC(),
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"token", "expires_at", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("saving token: %w", err)
		}
		if then != nil {
			return then()
		}
		return nil
	})
}

func (s *GormStore) Delete(ctx context.Context, userID string) error {
	return s.DeleteThen(ctx, userID, nil)
}

func (s *GormStore) DeleteThen(ctx context.Context, userID string, then func() error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := DeleteRows(tx, userID); err != nil {
			return err
		}
		if then != nil {
			return then()
		}
		return nil
	})
}

// Sweep removes tokens that expired before now and reports how many went.
func (s *GormStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", now.UTC()).Delete(&models.Token{})
	if res.Error != nil {
		return 0, fmt.Errorf("sweeping tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteRows deletes the token rows of userIDs using tx, so callers can include it in their own
// transaction. Missing rows are not an error.
func DeleteRows(tx *gorm.DB, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	if err := tx.Where("id IN ?", userIDs).Delete(&models.Token{}).Error; err != nil {
		return fmt.Errorf("deleting tokens: %w", err)
	}
	return nil
}
