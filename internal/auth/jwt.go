package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hugh/go-identity/internal/errs"
)

const issuer = "go-identity"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Payload is what a token asserts about its holder.
type Payload struct {
	Subject   string
	CompanyID string
	Role      string
}

type Claims struct {
	CompanyID string `json:"companyId"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// UserID is the subject of the token.
func (c *Claims) UserID() string {
	return c.Subject
}

// Payload strips the registered claims.
func (c *Claims) Payload() Payload {
	return Payload{Subject: c.Subject, CompanyID: c.CompanyID, Role: c.Role}
}

// IssuedToken is a signed token plus the instant it stops verifying.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

type signOptions struct {
	expiry  time.Duration
	tokenID string
}

type SignOption func(*signOptions)

// WithExpiry overrides the service default lifetime, e.g. for password-reset tokens.
func WithExpiry(d time.Duration) SignOption {
	return func(o *signOptions) {
		o.expiry = d
	}
}

// WithTokenID fixes the jti claim. Without it every token gets a random ID, so two tokens issued
// for the same payload within the same second still differ.
func WithTokenID(id string) SignOption {
	return func(o *signOptions) {
		o.tokenID = id
	}
}

type JWTService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewJWTService(secret string, expiry time.Duration) *JWTService {
	return &JWTService{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for iat/nbf/exp.
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	s.now = now
	return s
}

func (s *JWTService) Sign(p Payload, opts ...SignOption) (string, error) {
	issued, err := s.Issue(p, opts...)
	if err != nil {
		return "", err
	}
	return issued.Token, nil
}

// Issue signs p and also reports the expiry, which the credential store keeps alongside the token.
func (s *JWTService) Issue(p Payload, opts ...SignOption) (*IssuedToken, error) {
	if p.Subject == "" {
		return nil, errs.BadRequest("token subject is required")
	}

	o := signOptions{expiry: s.expiry}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tokenID == "" {
		o.tokenID = uuid.NewString()
	}

	now := s.now()
	expiresAt := now.Add(o.expiry)
	claims := Claims{
		CompanyID: p.CompanyID,
		Role:      p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   p.Subject,
			ID:        o.tokenID,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks signature, algorithm, expiry and subject. Every failure is Unauthorized; the
// wrapped cause is ErrExpiredToken or ErrInvalidToken.
func (s *JWTService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.Wrap(errs.KindUnauthorized, "Token has expired. Please re-login.", ErrExpiredToken)
		}
		return nil, errs.Wrap(errs.KindUnauthorized, "Unable to verify token. Please re-login.", ErrInvalidToken)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errs.Wrap(errs.KindUnauthorized, "Unable to verify token. Please re-login.", ErrInvalidToken)
	}

	return claims, nil
}
