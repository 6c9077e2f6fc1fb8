package auth

import (
	"context"

	"github.com/hugh/go-identity/internal/database/models"
	"github.com/hugh/go-identity/internal/directory"
)

// Directory is the part of the user directory the service depends on.
type Directory interface {
	FindByCredentials(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id, companyScope string) (*models.User, error)
	GetRole(ctx context.Context, id string) (string, error)
	Create(ctx context.Context, in directory.CreateInput) (string, error)
	Update(ctx context.Context, id, companyScope string, in directory.UpdateInput) (*directory.UpdateResult, error)
}

// Authenticator defines the authentication operations exposed to handlers.
type Authenticator interface {
	Register(ctx context.Context, in RegisterInput) (string, error)
	Login(ctx context.Context, in LoginInput) (string, error)
	Verify(ctx context.Context, token string) (*Claims, error)
	ForgotPassword(ctx context.Context, email, origin string) error
	ChangePassword(ctx context.Context, in ChangePasswordInput) error
	Logout(ctx context.Context, userID string) error
}

// TokenVerifier is what the access guard needs.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Compile-time interface satisfaction checks
var (
	_ Directory     = (*directory.Directory)(nil)
	_ Authenticator = (*Service)(nil)
	_ TokenVerifier = (*Service)(nil)
)
