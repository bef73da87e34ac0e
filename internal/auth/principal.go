package auth

import (
	"context"
	"strings"

	"scribe/internal/models"
)

// Principal is the authenticated identity behind a request. The zero value
// is the anonymous principal.
type Principal struct {
	UserID uint
	Email  string
	Role   models.Role
}

// Anonymous is the principal of an unauthenticated request.
var Anonymous = Principal{}

// IsAuthenticated reports whether the principal carries an identity.
func (p Principal) IsAuthenticated() bool {
	return p.UserID != 0
}

// IsAdmin reports whether the principal holds the ADMIN role.
func (p Principal) IsAdmin() bool {
	return p.IsAuthenticated() && p.Role == models.RoleAdmin
}

// CanManage reports whether the principal may mutate a resource owned by ownerID.
func (p Principal) CanManage(ownerID uint) bool {
	return p.IsAdmin() || (p.IsAuthenticated() && p.UserID == ownerID)
}

// PrincipalFor builds the principal of a persisted user.
func PrincipalFor(u *models.User) Principal {
	return Principal{UserID: u.ID, Email: u.Email, Role: u.Role}
}

type principalKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored on ctx or Anonymous.
func PrincipalFrom(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return Anonymous
}

// TokenVerifier is the part of TokenCodec the resolver needs.
type TokenVerifier interface {
	Verify(token string) (Principal, error)
}

// ResolvePrincipal picks the credential from the cookie value first and the
// Authorization header second. Any failure yields Anonymous.
func ResolvePrincipal(v TokenVerifier, cookie, authorization string) Principal {
	if cookie != "" {
		if p, err := v.Verify(cookie); err == nil {
			return p
		}
	}
	if token := bearerToken(authorization); token != "" {
		if p, err := v.Verify(token); err == nil {
			return p
		}
	}
	return Anonymous
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
