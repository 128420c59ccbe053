package service

import (
	"context"
	"errors"

	"github.com/wunderling/tutorledger/internal/ledger/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type TokenStoreParams struct {
	fx.In

	DB *gorm.DB
}

// tokenStore reads the single stored connection credential. Acquisition
// and refresh belong to the auth collaborator; this store only serves
// whatever that collaborator last wrote.
type tokenStore struct {
	db *gorm.DB
}

func NewTokenStore(p TokenStoreParams) domain.TokenStore {
	return &tokenStore{db: p.DB}
}

func (s *tokenStore) Current(ctx context.Context) (domain.Token, error) {
	var token domain.Token
	err := s.db.WithContext(ctx).Order("updated_at desc").First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Token{}, domain.ErrNotConnected
		}
		return domain.Token{}, err
	}
	if token.AccessToken == "" || token.RealmID == "" {
		return domain.Token{}, domain.ErrNotConnected
	}
	return token, nil
}
