package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hugh/go-identity/internal/credentials"
	"github.com/hugh/go-identity/internal/database/models"
	"github.com/hugh/go-identity/internal/directory"
	"github.com/hugh/go-identity/internal/errs"
	"github.com/hugh/go-identity/internal/mail"
	"github.com/hugh/go-identity/internal/obs"
	"github.com/hugh/go-identity/pkg/config"
	"github.com/hugh/go-identity/pkg/crypto"
)

const defaultResetExpiry = 15 * time.Minute

type Service struct {
	users       Directory
	tokens      credentials.Store
	jwt         *JWTService
	mailer      mail.Sender
	logger      *slog.Logger
	resetExpiry time.Duration
	bcryptCost  int
	company     string
	inviteLink  string
}

type Option func(*Service)

func WithMailer(m mail.Sender) Option {
	return func(s *Service) {
		s.mailer = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithResetExpiry sets the lifetime of password-reset tokens.
func WithResetExpiry(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.resetExpiry = d
		}
	}
}

func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// WithDefaultCompany is the company assigned at registration when none is given.
func WithDefaultCompany(id string) Option {
	return func(s *Service) {
		s.company = id
	}
}

// WithInviteLink is the "Start working" link of invitation emails. Empty disables invitations.
func WithInviteLink(link string) Option {
	return func(s *Service) {
		s.inviteLink = link
	}
}

func NewService(users Directory, tokens credentials.Store, jwt *JWTService, opts ...Option) *Service {
	s := &Service{
		users:       users,
		tokens:      tokens,
		jwt:         jwt,
		logger:      slog.Default(),
		resetExpiry: defaultResetExpiry,
		bcryptCost:  crypto.DefaultCost,
		company:     config.NoCompanyID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mailer == nil {
		s.mailer = mail.LogSender{Logger: s.logger}
	}
	return s
}

type RegisterInput struct {
	Username  string
	Password  string
	CompanyID string
	FullName  string
	Email     *string
	Phone     *string
	Notes     *string
	Method    *string
	Role      string
	// Active defaults to true when nil.
	Active  *bool
	Address directory.AddressInput
}

type LoginInput struct {
	Username string
	Password string
	// Role, when set, must equal the user's role.
	Role string
}

type ChangePasswordInput struct {
	UserID      string
	OldPassword string
	NewPassword string
	// Role is the role of the token presented by the caller.
	Role string
}

// Register creates a user and returns its ID.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	id, err := s.register(ctx, in)
	obs.RecordAuth("register", err)
	return id, err
}

func (s *Service) register(ctx context.Context, in RegisterInput) (string, error) {
	if strings.TrimSpace(in.Username) == "" {
		return "", errs.BadRequest("Username is required")
	}
	if in.Password == "" {
		return "", errs.BadRequest("Password is required")
	}

	hash, err := crypto.HashPasswordCost(in.Password, s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	companyID := in.CompanyID
	if companyID == "" {
		companyID = s.company
	}
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}

	id, err := s.users.Create(ctx, directory.CreateInput{
		CompanyID:    companyID,
		PasswordHash: hash,
		Username:     in.Username,
		FullName:     in.FullName,
		Email:        in.Email,
		Phone:        in.Phone,
		Active:       active,
		Notes:        in.Notes,
		Method:       in.Method,
		Role:         role,
		Address:      in.Address,
	})
	if err != nil {
		return "", err
	}

	if in.Email != nil && *in.Email != "" && s.inviteLink != "" {
		s.sendBestEffort(ctx, id, func() (mail.Message, error) {
			return mail.Invitation(*in.Email, s.inviteLink)
		})
	}

	s.logger.Info("user registered", "user_id", id, "company_id", companyID, "role", role)
	return id, nil
}

// Login checks the credentials and issues a token that replaces any previous one of the user.
func (s *Service) Login(ctx context.Context, in LoginInput) (string, error) {
	token, err := s.login(ctx, in)
	obs.RecordAuth("login", err)
	return token, err
}

func (s *Service) login(ctx context.Context, in LoginInput) (string, error) {
	user, err := s.users.FindByCredentials(ctx, in.Username)
	if err != nil {
		return "", err
	}
	if !user.Active {
		return "", errs.Forbidden("User is not active")
	}
	if !crypto.CheckPassword(in.Password, user.Hash) {
		return "", errs.Unauthorized("Invalid username or password")
	}

	role, err := s.users.GetRole(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if in.Role != "" && in.Role != role {
		return "", errs.Forbidden("Role mismatch")
	}

	issued, err := s.issue(ctx, Payload{Subject: user.ID, CompanyID: user.CompanyID, Role: role})
	if err != nil {
		return "", err
	}

	s.logger.Debug("user logged in", "user_id", user.ID, "role", role)
	return issued.Token, nil
}

// issue signs p and stores the result as the only valid token of the subject.
func (s *Service) issue(ctx context.Context, p Payload, opts ...SignOption) (*IssuedToken, error) {
	issued, err := s.jwt.Issue(p, opts...)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	if err := s.tokens.Put(ctx, p.Subject, issued.Token, issued.ExpiresAt); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}
	return issued, nil
}

// Verify accepts a token only while it is the one currently stored for its subject.
func (s *Service) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.verify(ctx, token)
	obs.RecordAuth("verify", err)
	return claims, err
}

func (s *Service) verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.jwt.Verify(token)
	if err != nil {
		return nil, err
	}

	stored, err := s.tokens.Get(ctx, claims.Subject)
	if err != nil && !errors.Is(err, credentials.ErrNotFound) {
		return nil, fmt.Errorf("loading stored token: %w", err)
	}
	if err != nil || subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return nil, errs.Unauthorized("Token is not match to the user. Please re-login")
	}
	return claims, nil
}

// ForgotPassword mails a reset link to the owner of email. Unknown emails succeed silently.
func (s *Service) ForgotPassword(ctx context.Context, email, origin string) error {
	err := s.forgotPassword(ctx, email, origin)
	obs.RecordAuth("forgot_password", err)
	return err
}

func (s *Service) forgotPassword(ctx context.Context, email, origin string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errs.BadRequest("Email is required")
	}
	base, err := resetBase(origin)
	if err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return err
	}
	if !user.Active {
		return errs.Forbidden("User is not active")
	}

	issued, err := s.issue(ctx,
		Payload{Subject: user.ID, CompanyID: user.CompanyID, Role: models.RoleForgotPassword},
		WithExpiry(s.resetExpiry),
	)
	if err != nil {
		return err
	}

	base.Fragment = issued.Token
	link := base.String()
	s.sendBestEffort(ctx, user.ID, func() (mail.Message, error) {
		return mail.PasswordReset(email, link)
	})
	return nil
}

// resetBase parses the origin a reset link points at. Only http(s) origins are accepted.
func resetBase(origin string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.User != nil {
		return nil, errs.BadRequest("Origin must be an http or https origin")
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}, nil
}

// ChangePassword sets a new password. A caller holding a reset token skips the old-password check.
func (s *Service) ChangePassword(ctx context.Context, in ChangePasswordInput) error {
	err := s.changePassword(ctx, in)
	obs.RecordAuth("change_password", err)
	return err
}

func (s *Service) changePassword(ctx context.Context, in ChangePasswordInput) error {
	if in.NewPassword == "" {
		return errs.BadRequest("New password is required")
	}

	if in.Role != models.RoleForgotPassword {
		if in.OldPassword == "" {
			return errs.Unauthorized("Old password is required")
		}
		user, err := s.users.FindByID(ctx, in.UserID, "")
		if err != nil {
			return err
		}
		if !user.Active {
			return errs.Forbidden("User is not active")
		}
		if !crypto.CheckPassword(in.OldPassword, user.Hash) {
			return errs.Unauthorized("Old password is incorrect")
		}
	}

	password := in.NewPassword
	if _, err := s.users.Update(ctx, in.UserID, "", directory.UpdateInput{Password: &password}); err != nil {
		return err
	}
	// Update already removed the row; this clears any cached copy the directory could not evict.
	if err := s.tokens.Delete(ctx, in.UserID); err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}

	s.logger.Info("password changed", "user_id", in.UserID, "via_reset", in.Role == models.RoleForgotPassword)
	return nil
}

// Logout drops the stored token so it no longer verifies.
func (s *Service) Logout(ctx context.Context, userID string) error {
	err := s.tokens.Delete(ctx, userID)
	obs.RecordAuth("logout", err)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

func (s *Service) sendBestEffort(ctx context.Context, userID string, build func() (mail.Message, error)) {
	msg, err := build()
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.logger.Warn("failed to send email", "user_id", userID, "error", err)
	}
}
