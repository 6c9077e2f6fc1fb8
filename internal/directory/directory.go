// Package directory owns user, address and role-assignment records.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/go-identity/internal/credentials"
	"github.com/hugh/go-identity/internal/database/models"
	"github.com/hugh/go-identity/internal/errs"
	"github.com/hugh/go-identity/pkg/crypto"
	"gorm.io/gorm"
)

const defaultFullName = "NoNa"

const errUserNotFound = "Requested user has not been found"

type Directory struct {
	db         *gorm.DB
	evicter    credentials.Evicter
	bcryptCost int
	logger     *slog.Logger
}

type Option func(*Directory)

// WithEvicter registers a token cache that must forget users whose token rows are deleted. Evict
// runs inside the deleting transaction; its failure aborts the change.
func WithEvicter(e credentials.Evicter) Option {
	return func(d *Directory) {
		d.evicter = e
	}
}

func WithBcryptCost(cost int) Option {
	return func(d *Directory) {
		d.bcryptCost = cost
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) {
		d.logger = logger
	}
}

func New(db *gorm.DB, opts ...Option) *Directory {
	d := &Directory{
		db:         db,
		bcryptCost: crypto.DefaultCost,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AddressInput holds optional address fields; nil means "not supplied".
type AddressInput struct {
	State    *string
	City     *string
	Zip      *string
	Address1 *string
	Address2 *string
}

func (a AddressInput) columns() map[string]interface{} {
	cols := make(map[string]interface{})
	set := func(name string, v *string) {
		if v != nil {
			cols[name] = *v
		}
	}
	set("state", a.State)
	set("city", a.City)
	set("zip", a.Zip)
	set("address1", a.Address1)
	set("address2", a.Address2)
	return cols
}

type CreateInput struct {
	CompanyID    string
	PasswordHash string
	Username     string
	FullName     string
	Email        *string
	Phone        *string
	Active       bool
	Notes        *string
	Method       *string
	Role         string
	Address      AddressInput
}

// NonPrivateUser is the projection other services may see.
type NonPrivateUser struct {
	ID       string  `json:"id"`
	FullName string  `json:"fullName"`
	Email    *string `json:"email"`
}

func (d *Directory) withUserRelations(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Address").Preload("UserGroup.Group")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.Wrap(errs.KindNotFound, errUserNotFound, err)
	}
	return fmt.Errorf("loading user: %w", err)
}

// FindByCredentials looks a user up by username, ignoring case.
func (d *Directory) FindByCredentials(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).
		Preload("UserGroup.Group").
		Where("LOWER(username) = LOWER(?)", username).
		First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).
		Preload("UserGroup.Group").
		Where("email = ?", email).
		First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// FindByID loads a user with address and role. A non-empty companyScope restricts the lookup
// to that tenant; a user of another tenant is reported as NotFound.
func (d *Directory) FindByID(ctx context.Context, id, companyScope string) (*models.User, error) {
	q := d.withUserRelations(d.db.WithContext(ctx)).Where("id = ?", id)
	if companyScope != "" {
		q = q.Where("company_id = ?", companyScope)
	}

	var user models.User
	if err := q.First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// FindAll lists users of companyScope, or every user when the scope is empty.
func (d *Directory) FindAll(ctx context.Context, companyScope string) ([]models.User, error) {
	q := d.withUserRelations(d.db.WithContext(ctx)).Order("username")
	if companyScope != "" {
		q = q.Where("company_id = ?", companyScope)
	}

	var users []models.User
	if err := q.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// FindNonPrivate returns the public projection of one user (when id is set) or of every user in
// companyScope.
func (d *Directory) FindNonPrivate(ctx context.Context, id, companyScope string) ([]NonPrivateUser, error) {
	q := d.db.WithContext(ctx).Model(&models.User{}).Select("id", "full_name", "email").Order("full_name")
	if id != "" {
		q = q.Where("id = ?", id)
	}
	if companyScope != "" {
		q = q.Where("company_id = ?", companyScope)
	}

	var users []NonPrivateUser
	if err := q.Scan(&users).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

func (d *Directory) GetRole(ctx context.Context, id string) (string, error) {
	var ug models.UserGroup
	err := d.db.WithContext(ctx).Preload("Group").Where("user_id = ?", id).First(&ug).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errs.Wrap(errs.KindNotFound, fmt.Sprintf("User %q is not assigned to any group", id), err)
		}
		return "", fmt.Errorf("loading role: %w", err)
	}
	if ug.Group == nil {
		return "", errs.NotFound(fmt.Sprintf("User %q is not assigned to any group", id))
	}
	return ug.Group.Role, nil
}

// Create stores the user, its address and its role assignment in one transaction and returns the
// new user ID.
func (d *Directory) Create(ctx context.Context, in CreateInput) (string, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return "", errs.BadRequest("Username is required")
	}
	if in.Email != nil && *in.Email == "" {
		in.Email = nil
	}
	if in.FullName == "" {
		in.FullName = defaultFullName
	}

	userID := uuid.NewString()
	addressID := uuid.NewString()

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := identityTaken(tx, in.Username, in.Email)
		if err != nil {
			return err
		}
		if taken {
			return errs.BadRequest(alreadyExistsMessage(in.Username, in.Email))
		}

		address := models.Address{
			ID:       addressID,
			State:    in.Address.State,
			City:     in.Address.City,
			Zip:      in.Address.Zip,
			Address1: in.Address.Address1,
			Address2: in.Address.Address2,
		}
		if err := tx.Create(&address).Error; err != nil {
			return err
		}

		user := models.User{
			ID:        userID,
			CompanyID: in.CompanyID,
			AddressID: addressID,
			Hash:      in.PasswordHash,
			Username:  in.Username,
			FullName:  in.FullName,
			Email:     in.Email,
			Phone:     in.Phone,
			Active:    in.Active,
			Notes:     in.Notes,
			Method:    in.Method,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		return tx.Create(&models.UserGroup{
			UserID:  userID,
			GroupID: models.GroupIDForRole(in.Role),
		}).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", errs.Wrap(errs.KindBadRequest, alreadyExistsMessage(in.Username, in.Email), err)
		}
		if errs.KindOf(err) != errs.KindInternal {
			return "", err
		}
		return "", fmt.Errorf("creating user: %w", err)
	}

	d.logger.Debug("user created", "user_id", userID, "company_id", in.CompanyID)
	return userID, nil
}

func identityTaken(tx *gorm.DB, username string, email *string) (bool, error) {
	q := tx.Model(&models.User{}).Where("LOWER(username) = LOWER(?)", username)
	if email != nil {
		q = q.Or("email = ?", *email)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking existing users: %w", err)
	}
	return count > 0, nil
}

func alreadyExistsMessage(username string, email *string) string {
	if email == nil {
		return fmt.Sprintf("%s already exists", username)
	}
	return fmt.Sprintf("%s or %s already exist", username, *email)
}

// checkCompany denies acting on a user outside companyScope. Unlike FindByID, a user that exists
// in another tenant yields Forbidden here.
func (d *Directory) checkCompany(ctx context.Context, companyScope, id string) error {
	if companyScope == "" {
		return nil
	}

	var user models.User
	err := d.db.WithContext(ctx).Select("id", "company_id").Where("id = ?", id).First(&user).Error
	if err != nil {
		return notFound(err)
	}
	if user.CompanyID != companyScope {
		return errs.Forbidden("Unable to perform the action with user")
	}
	return nil
}

func (d *Directory) evict(ctx context.Context, ids ...string) error {
	if d.evicter == nil || len(ids) == 0 {
		return nil
	}
	if err := d.evicter.Evict(ctx, ids...); err != nil {
		d.logger.Error("failed to evict cached tokens", "users", len(ids), "error", err)
		return fmt.Errorf("evicting tokens: %w", err)
	}
	return nil
}
