package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

// Claims are the JWT claims issued by the identity service.
type Claims struct {
	jwt.RegisteredClaims
	Role    string `json:"role"`
	StoreID string `json:"store_id"`
	BrandID string `json:"brand_id,omitempty"`
}

// JWTValidator validates HS256 tokens signed with a shared secret.
type JWTValidator struct {
	secret []byte
}

func NewJWTValidator(secret []byte) *JWTValidator {
	return &JWTValidator{secret: secret}
}

// Validate parses and verifies a token string and maps it to an actor.
func (v *JWTValidator) Validate(tokenStr string) (contracts.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return contracts.Actor{}, fmt.Errorf("token validation failed: %w", err)
	}
	if claims.Subject == "" {
		return contracts.Actor{}, fmt.Errorf("token has no subject")
	}
	return contracts.Actor{
		UserID:  claims.Subject,
		Role:    claims.Role,
		StoreID: claims.StoreID,
		BrandID: claims.BrandID,
	}, nil
}

// Middleware authenticates Bearer tokens and injects the actor into the
// request context. Requests without a valid token get 401.
func (v *JWTValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			writeUnauthorized(w, r, "missing bearer token")
			return
		}
		actor, err := v.Validate(tokenStr)
		if err != nil {
			writeUnauthorized(w, r, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnauthorized)
	body := map[string]any{
		"type":   "about:blank",
		"title":  "Unauthorized",
		"status": http.StatusUnauthorized,
		"detail": detail,
	}
	if id := RequestIDFrom(r.Context()); id != "" {
		body["trace_id"] = id
	}
	_ = json.NewEncoder(w).Encode(body)
}
