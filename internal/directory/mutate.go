package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/hugh/go-identity/internal/credentials"
	"github.com/hugh/go-identity/internal/database/models"
	"github.com/hugh/go-identity/internal/errs"
	"github.com/hugh/go-identity/pkg/crypto"
	"gorm.io/gorm"
)

// UpdateInput is sparse: nil fields are left untouched. Empty strings for Email, Password and
// Role count as not supplied.
type UpdateInput struct {
	Email    *string
	Password *string
	FullName *string
	Phone    *string
	Active   *bool
	Notes    *string
	Role     *string
	Address  AddressInput
}

func (in *UpdateInput) normalize() {
	blank := func(p **string) {
		if *p != nil && **p == "" {
			*p = nil
		}
	}
	blank(&in.Email)
	blank(&in.Password)
	blank(&in.Role)
}

// IsEmpty reports whether nothing would change.
func (in UpdateInput) IsEmpty() bool {
	in.normalize()
	return in.Email == nil && in.Password == nil && in.FullName == nil && in.Phone == nil &&
		in.Active == nil && in.Notes == nil && in.Role == nil && len(in.Address.columns()) == 0
}

// invalidatesToken is true for changes after which the current token must stop verifying.
func (in UpdateInput) invalidatesToken() bool {
	return in.Role != nil || in.Password != nil || (in.Active != nil && !*in.Active)
}

type UpdateResult struct {
	// Changed is false when the input carried nothing to apply; User is nil then.
	Changed bool
	User    *models.User
}

type RemoveResult struct {
	ID string `json:"id"`
}

// Update applies in to user id. A non-empty companyScope requires the user to belong to it.
func (d *Directory) Update(ctx context.Context, id, companyScope string, in UpdateInput) (*UpdateResult, error) {
	if _, err := d.GetRole(ctx, id); err != nil {
		return nil, err
	}
	if err := d.checkCompany(ctx, companyScope, id); err != nil {
		return nil, err
	}

	in.normalize()
	if in.IsEmpty() {
		return &UpdateResult{Changed: false}, nil
	}

	var passwordHash string
	if in.Password != nil {
		hash, err := crypto.HashPasswordCost(*in.Password, d.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		passwordHash = hash
	}

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if addr := in.Address.columns(); len(addr) > 0 {
			var user models.User
			if err := tx.Select("id", "address_id").Where("id = ?", id).First(&user).Error; err != nil {
				return notFound(err)
			}
			if err := tx.Model(&models.Address{}).Where("id = ?", user.AddressID).Updates(addr).Error; err != nil {
				return fmt.Errorf("updating address: %w", err)
			}
		}

		cols := make(map[string]interface{})
		if in.Email != nil {
			var count int64
			if err := tx.Model(&models.User{}).
				Where("email = ? AND id <> ?", *in.Email, id).
				Count(&count).Error; err != nil {
				return fmt.Errorf("checking email: %w", err)
			}
			if count > 0 {
				return errs.BadRequest("Unable to update the user with existing email")
			}
			cols["email"] = *in.Email
		}
		if passwordHash != "" {
			cols["hash"] = passwordHash
		}
		if in.FullName != nil {
			cols["full_name"] = *in.FullName
		}
		if in.Phone != nil {
			cols["phone"] = *in.Phone
		}
		if in.Active != nil {
			cols["active"] = *in.Active
		}
		if in.Notes != nil {
			cols["notes"] = *in.Notes
		}
		if len(cols) > 0 {
			if err := tx.Model(&models.User{}).Where("id = ?", id).Updates(cols).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return errs.Wrap(errs.KindBadRequest, "Unable to update the user with existing email", err)
				}
				return fmt.Errorf("updating user: %w", err)
			}
		}

		if in.Role != nil {
			if err := tx.Model(&models.UserGroup{}).
				Where("user_id = ?", id).
				Update("group_id", models.GroupIDForRole(*in.Role)).Error; err != nil {
				return fmt.Errorf("updating role: %w", err)
			}
		}

		if in.invalidatesToken() {
			if err := credentials.DeleteRows(tx, id); err != nil {
				return err
			}
			return d.evict(ctx, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	user, err := d.FindByID(ctx, id, "")
	if err != nil {
		return nil, err
	}
	return &UpdateResult{Changed: true, User: user}, nil
}

// Remove deletes the stored token, role assignment, user and address of id in one transaction.
// Only admins may remove admins.
func (d *Directory) Remove(ctx context.Context, id, companyScope, actorRole string) (*RemoveResult, error) {
	if actorRole != models.RoleAdmin {
		role, err := d.GetRole(ctx, id)
		if err != nil {
			return nil, err
		}
		if role == models.RoleAdmin {
			return nil, errs.Forbidden("Unable to perform the action with user")
		}
	}
	if err := d.checkCompany(ctx, companyScope, id); err != nil {
		return nil, err
	}

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Select("id", "address_id").Where("id = ?", id).First(&user).Error; err != nil {
			return notFound(err)
		}

		if err := credentials.DeleteRows(tx, id); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.UserGroup{}).Error; err != nil {
			return fmt.Errorf("deleting role: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("deleting user: %w", err)
		}
		if err := tx.Where("id = ?", user.AddressID).Delete(&models.Address{}).Error; err != nil {
			return fmt.Errorf("deleting address: %w", err)
		}
		return d.evict(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("user removed", "user_id", id)
	return &RemoveResult{ID: id}, nil
}

// RemoveByCompany removes every user of companyID in one transaction and returns how many.
func (d *Directory) RemoveByCompany(ctx context.Context, companyID string) (int, error) {
	if companyID == "" {
		return 0, errs.BadRequest("companyId is required")
	}

	var ids []string
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var users []models.User
		if err := tx.Select("id", "address_id").Where("company_id = ?", companyID).Find(&users).Error; err != nil {
			return fmt.Errorf("listing users: %w", err)
		}
		if len(users) == 0 {
			return nil
		}

		addressIDs := make([]string, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.ID)
			addressIDs = append(addressIDs, u.AddressID)
		}

		if err := credentials.DeleteRows(tx, ids...); err != nil {
			return err
		}
		if err := tx.Where("user_id IN ?", ids).Delete(&models.UserGroup{}).Error; err != nil {
			return fmt.Errorf("deleting roles: %w", err)
		}
		if err := tx.Where("company_id = ?", companyID).Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("deleting users: %w", err)
		}
		if err := tx.Where("id IN ?", addressIDs).Delete(&models.Address{}).Error; err != nil {
			return fmt.Errorf("deleting addresses: %w", err)
		}
		return d.evict(ctx, ids...)
	})
	if err != nil {
		return 0, err
	}

	d.logger.Info("company users removed", "company_id", companyID, "count", len(ids))
	return len(ids), nil
}
