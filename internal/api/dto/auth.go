package dto

import (
	"strings"

	"github.com/hugh/go-identity/internal/api/validation"
	"github.com/hugh/go-identity/internal/directory"
)

type AddressDTO struct {
	State    *string `json:"state,omitempty"`
	City     *string `json:"city,omitempty"`
	Zip      *string `json:"zip,omitempty"`
	Address1 *string `json:"address1,omitempty"`
	Address2 *string `json:"address2,omitempty"`
}

func (a *AddressDTO) Input() directory.AddressInput {
	if a == nil {
		return directory.AddressInput{}
	}
	return directory.AddressInput{
		State:    a.State,
		City:     a.City,
		Zip:      a.Zip,
		Address1: a.Address1,
		Address2: a.Address2,
	}
}

type RegisterRequest struct {
	Username  string      `json:"username"`
	Password  string      `json:"password"`
	CompanyID string      `json:"companyId,omitempty"`
	FullName  string      `json:"fullName,omitempty"`
	Email     *string     `json:"email,omitempty"`
	Phone     *string     `json:"phone,omitempty"`
	Active    *bool       `json:"active,omitempty"`
	Notes     *string     `json:"notes,omitempty"`
	Method    *string     `json:"method,omitempty"`
	Role      string      `json:"role,omitempty"`
	Address   *AddressDTO `json:"address,omitempty"`
}

func (r RegisterRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Username == "" {
		errors["username"] = "Username is required"
	} else if !validation.IsValidUsername(r.Username) {
		errors["username"] = "Username must be 1-64 characters without spaces"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}
	if r.Email != nil && *r.Email != "" && !validation.IsValidEmail(*r.Email) {
		errors["email"] = "Invalid email format"
	}
	if r.CompanyID != "" && !validation.IsValidUUID(r.CompanyID) {
		errors["companyId"] = "Company ID must be a UUID"
	}
	if r.Phone != nil && *r.Phone != "" && !validation.IsValidPhone(*r.Phone) {
		errors["phone"] = "Phone must be in international format"
	}
	if r.Role != "" && !validation.IsAssignableRole(r.Role) {
		errors["role"] = "Role must be one of admin, user, service"
	}

	return errors
}

// Normalize trims and sanitizes free-text fields.
func (r *RegisterRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.FullName = validation.SanitizeString(strings.TrimSpace(r.FullName))
	if r.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*r.Email))
		r.Email = &e
	}
	if r.Phone != nil {
		p := validation.NormalizePhone(strings.TrimSpace(*r.Phone))
		r.Phone = &p
	}
	if r.Notes != nil {
		n := validation.TruncateString(validation.SanitizeString(*r.Notes), 2000)
		r.Notes = &n
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

func (r LoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Username == "" {
		errors["username"] = "Username is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r ForgotPasswordRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(r.Email) {
		errors["email"] = "Invalid email format"
	}

	return errors
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword,omitempty"`
	NewPassword string `json:"newPassword"`
}

func (r ChangePasswordRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.NewPassword == "" {
		errors["newPassword"] = "New password is required"
	}

	return errors
}

type TokenResponse struct {
	Token string `json:"token"`
}

type VerifyResponse struct {
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	CompanyID string `json:"companyId"`
}

type IDResponse struct {
	ID string `json:"id"`
}
