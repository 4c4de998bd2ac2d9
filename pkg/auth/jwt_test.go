package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func managerClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:    "store_manager",
		StoreID: "store-1",
	}
}

func TestValidate(t *testing.T) {
	v := NewJWTValidator(testSecret)

	actor, err := v.Validate(signToken(t, managerClaims()))
	require.NoError(t, err)
	assert.Equal(t, "u-1", actor.UserID)
	assert.Equal(t, "store_manager", actor.Role)
	assert.Equal(t, "store-1", actor.StoreID)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	other := NewJWTValidator([]byte("other-secret"))
	_, err := other.Validate(signToken(t, managerClaims()))
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	v := NewJWTValidator(testSecret)
	claims := managerClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	_, err := v.Validate(signToken(t, claims))
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	v := NewJWTValidator(testSecret)
	var got contracts.Actor
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := ActorFrom(r.Context())
		require.NoError(t, err)
		got = actor
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/decisions/pending", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, managerClaims()))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "u-1", got.UserID)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	v := NewJWTValidator(testSecret)
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestActorLimiter(t *testing.T) {
	l := NewActorLimiter(1, 2)
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := []int{}
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
}
