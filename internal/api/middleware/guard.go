package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hugh/go-identity/internal/auth"
	"github.com/hugh/go-identity/internal/errs"
	"github.com/hugh/go-identity/pkg/config"
	"github.com/hugh/go-identity/pkg/util"
)

type contextKey string

const identityKey contextKey = "identity"

// Client-supplied headers that look like trusted identity. They are removed from every request.
var spoofableHeaders = []string{"payload-user-id", "payload-role", "payload-company-id"}

// Identity is the verified caller, set only by Guard.
type Identity struct {
	UserID    string
	Role      string
	// CompanyID is empty when the token carried the no-company sentinel.
	CompanyID string
}

// IdentityFromContext returns the caller verified by Guard.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Policy is the access rule of one route.
type Policy struct {
	Public bool
	// Roles lists the roles allowed through. Empty means any verified caller.
	Roles []string
}

// PublicPolicy lets everyone through without a token.
func PublicPolicy() Policy {
	return Policy{Public: true}
}

// RolesPolicy admits verified callers holding one of roles.
func RolesPolicy(roles ...string) Policy {
	return Policy{Roles: roles}
}

func (p Policy) allows(role string) bool {
	if len(p.Roles) == 0 {
		return true
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Guard struct {
	verifier auth.TokenVerifier
	logger   *slog.Logger
}

func NewGuard(verifier auth.TokenVerifier, logger *slog.Logger) *Guard {
	return &Guard{verifier: verifier, logger: logger}
}

// Enforce returns middleware applying policy.
func (g *Guard) Enforce(policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range spoofableHeaders {
				r.Header.Del(h)
			}

			if policy.Public {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authorization header is missing or malformed")
				return
			}

			claims, err := g.verifier.Verify(r.Context(), token)
			if err != nil {
				if errs.KindOf(err) == errs.KindInternal {
					g.logger.Error("token verification failed", "token", util.MaskToken(token), "error", err)
					writeError(w, http.StatusInternalServerError, errs.Message(err))
					return
				}
				g.logger.Debug("token rejected", "token", util.MaskToken(token), "error", err)
				writeError(w, http.StatusUnauthorized, errs.Message(err))
				return
			}

			if !policy.allows(claims.Role) {
				writeError(w, http.StatusForbidden, "Access denied for role "+claims.Role)
				return
			}

			id := Identity{UserID: claims.Subject, Role: claims.Role}
			if claims.CompanyID != config.NoCompanyID {
				id.CompanyID = claims.CompanyID
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}
