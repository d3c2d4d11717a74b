// Package auth handles password hashing, token issuance, and resolving a
// caller identity from a bearer token.
package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/campushub/campus-events/internal/apperr"
	"github.com/campushub/campus-events/internal/model"
)

// TokenTTL is how long an issued token stays valid.
const TokenTTL = 24 * time.Hour

// Identity is the resolved caller: who they are and what they may do.
// Everything downstream of the auth middleware consumes only this pair.
type Identity struct {
	ID   string
	Role model.Role
}

// IsAdmin reports whether the caller holds the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == model.RoleAdmin
}

// HashPassword returns the bcrypt hash of a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Claims is the JWT payload for issued tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with the given signing secret.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for u, valid for TokenTTL.
func (t *TokenIssuer) Issue(u *model.User) (string, error) {
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
		Email: u.Email,
		Role:  u.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies a token string and returns the caller identity.
func (t *TokenIssuer) Parse(tokenString string) (Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(token *jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Identity{}, apperr.Wrap(apperr.Validation, "invalid token", err)
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return Identity{}, apperr.New(apperr.Validation, "invalid token")
	}
	return Identity{ID: claims.Subject, Role: claims.Role}, nil
}

// identityKey is an unexported context key type to avoid collisions.
type identityKey struct{}

// WithIdentity returns a context carrying the resolved caller identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom extracts the caller identity set by the auth middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
