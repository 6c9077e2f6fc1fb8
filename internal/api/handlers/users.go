package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/go-identity/internal/api/dto"
	"github.com/hugh/go-identity/internal/api/validation"
	"github.com/hugh/go-identity/internal/database/models"
	"github.com/hugh/go-identity/internal/directory"
)

// UserDirectory is the directory surface used by the user routes.
type UserDirectory interface {
	FindByID(ctx context.Context, id, companyScope string) (*models.User, error)
	FindAll(ctx context.Context, companyScope string) ([]models.User, error)
	FindNonPrivate(ctx context.Context, id, companyScope string) ([]directory.NonPrivateUser, error)
	Update(ctx context.Context, id, companyScope string, in directory.UpdateInput) (*directory.UpdateResult, error)
	Remove(ctx context.Context, id, companyScope, actorRole string) (*directory.RemoveResult, error)
	RemoveByCompany(ctx context.Context, companyID string) (int, error)
}

type UserHandler struct {
	users  UserDirectory
	logger *slog.Logger
}

func NewUserHandler(users UserDirectory, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	users, err := h.users.FindAll(r.Context(), id.CompanyID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewUserDTOs(users))
}

func (h *UserHandler) ListNonPrivate(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	users, err := h.users.FindNonPrivate(r.Context(), r.URL.Query().Get("id"), id.CompanyID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if users == nil {
		users = []directory.NonPrivateUser{}
	}

	writeJSON(w, http.StatusOK, users)
}

// Get returns one user. Plain users may only read themselves; reading yourself skips the company
// scope.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "id")

	if id.Role == models.RoleUser && userID != id.UserID {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Users may only read their own record"})
		return
	}

	scope := id.CompanyID
	if userID == id.UserID {
		scope = ""
	}

	user, err := h.users.FindByID(r.Context(), userID, scope)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewUserDTO(user))
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "id")

	var req dto.UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if validationFailed(w, req.Validate()) {
		return
	}

	if userID == id.UserID && req.Role != nil && *req.Role != "" && *req.Role != id.Role {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Unable to change own role"})
		return
	}

	res, err := h.users.Update(r.Context(), userID, id.CompanyID, req.Input())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := dto.UpdateUserResponse{Changed: res.Changed}
	if res.User != nil {
		u := dto.NewUserDTO(res.User)
		resp.User = &u
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *UserHandler) DeleteByCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	companyID := r.URL.Query().Get("companyId")
	if !validation.IsValidUUID(companyID) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "companyId must be a UUID"})
		return
	}
	if id.CompanyID != "" && id.CompanyID != companyID {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Unable to remove users of another company"})
		return
	}

	n, err := h.users.RemoveByCompany(r.Context(), companyID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("company users removed", "company_id", companyID, "count", n, "actor", id.UserID)
	writeJSON(w, http.StatusOK, dto.DeleteCompanyResponse{CompanyID: companyID, Deleted: n})
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "id")

	if userID == id.UserID {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Unable to remove yourself"})
		return
	}

	res, err := h.users.Remove(r.Context(), userID, id.CompanyID, id.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
