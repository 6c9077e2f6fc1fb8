package dto

import (
	"strings"
	"time"

	"github.com/hugh/go-identity/internal/api/validation"
	"github.com/hugh/go-identity/internal/database/models"
	"github.com/hugh/go-identity/internal/directory"
)

type UpdateUserRequest struct {
	Email    *string     `json:"email,omitempty"`
	Password *string     `json:"password,omitempty"`
	FullName *string     `json:"fullName,omitempty"`
	Phone    *string     `json:"phone,omitempty"`
	Active   *bool       `json:"active,omitempty"`
	Notes    *string     `json:"notes,omitempty"`
	Role     *string     `json:"role,omitempty"`
	Address  *AddressDTO `json:"address,omitempty"`
}

func (r UpdateUserRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email != nil && *r.Email != "" && !validation.IsValidEmail(*r.Email) {
		errors["email"] = "Invalid email format"
	}
	if r.Phone != nil && *r.Phone != "" && !validation.IsValidPhone(*r.Phone) {
		errors["phone"] = "Phone must be in international format"
	}
	if r.Role != nil && *r.Role != "" && !validation.IsAssignableRole(*r.Role) {
		errors["role"] = "Role must be one of admin, user, service"
	}

	return errors
}

func (r UpdateUserRequest) Input() directory.UpdateInput {
	in := directory.UpdateInput{
		Password: r.Password,
		Active:   r.Active,
		Role:     r.Role,
		Address:  r.Address.Input(),
	}
	if r.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*r.Email))
		in.Email = &e
	}
	if r.FullName != nil {
		n := validation.SanitizeString(strings.TrimSpace(*r.FullName))
		in.FullName = &n
	}
	if r.Phone != nil {
		p := validation.NormalizePhone(strings.TrimSpace(*r.Phone))
		in.Phone = &p
	}
	if r.Notes != nil {
		n := validation.TruncateString(validation.SanitizeString(*r.Notes), 2000)
		in.Notes = &n
	}
	return in
}

type UserDTO struct {
	ID        string      `json:"id"`
	CompanyID string      `json:"companyId"`
	Username  string      `json:"username"`
	FullName  string      `json:"fullName"`
	Email     *string     `json:"email"`
	Phone     *string     `json:"phone"`
	Active    bool        `json:"active"`
	Notes     *string     `json:"notes"`
	Method    *string     `json:"method"`
	Role      string      `json:"role"`
	Address   *AddressDTO `json:"address,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func NewUserDTO(u *models.User) UserDTO {
	out := UserDTO{
		ID:        u.ID,
		CompanyID: u.CompanyID,
		Username:  u.Username,
		FullName:  u.FullName,
		Email:     u.Email,
		Phone:     u.Phone,
		Active:    u.Active,
		Notes:     u.Notes,
		Method:    u.Method,
		Role:      u.Role(),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.Address != nil {
		out.Address = &AddressDTO{
			State:    u.Address.State,
			City:     u.Address.City,
			Zip:      u.Address.Zip,
			Address1: u.Address.Address1,
			Address2: u.Address.Address2,
		}
	}
	return out
}

func NewUserDTOs(users []models.User) []UserDTO {
	out := make([]UserDTO, len(users))
	for i := range users {
		out[i] = NewUserDTO(&users[i])
	}
	return out
}

// UpdateUserResponse reports whether anything changed; User is omitted for no-op updates.
type UpdateUserResponse struct {
	Changed bool     `json:"changed"`
	User    *UserDTO `json:"user,omitempty"`
}

type DeleteCompanyResponse struct {
	CompanyID string `json:"companyId"`
	Deleted   int    `json:"deleted"`
}
