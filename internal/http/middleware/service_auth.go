package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const serviceClaimsKey contextKey = "serviceClaims"

// Service roles carried in the "role" claim.
const (
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// ServiceClaims are issued by the MaiSON backend to callers of seller and
// admin endpoints.
type ServiceClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ServiceJWT verifies an HMAC-signed bearer token and, when roles are given,
// requires the token's role to be one of them. An empty secret disables the
// check so local development can run without tokens.
func ServiceJWT(secret string, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			var claims ServiceClaims
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, claims.Role) {
				writeAuthError(w, http.StatusForbidden, "insufficient role")
				return
			}
			ctx := context.WithValue(r.Context(), serviceClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ServiceClaimsFromContext returns the verified claims if present.
func ServiceClaimsFromContext(ctx context.Context) (ServiceClaims, bool) {
	claims, ok := ctx.Value(serviceClaimsKey).(ServiceClaims)
	return claims, ok
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
