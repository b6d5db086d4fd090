package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cr3t"

func init() { gin.SetMode(gin.TestMode) }

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func authRouter(secret string) *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.MustGet(UserIDKey)})
	})
	return r
}

func call(r http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_Claims(t *testing.T) {
	r := authRouter(testSecret)
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"numeric userId", jwt.MapClaims{"userId": 7, "exp": exp}, `{"id":7}`},
		{"string sub", jwt.MapClaims{"sub": "12", "exp": exp}, `{"id":12}`},
		{"userId wins", jwt.MapClaims{"userId": 3, "sub": "9", "exp": exp}, `{"id":3}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := call(r, "Bearer "+sign(t, jwt.SigningMethodHS256, []byte(testSecret), tc.claims))
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.JSONEq(t, tc.want, w.Body.String())
		})
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	r := authRouter(testSecret)
	exp := time.Now().Add(time.Hour).Unix()

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"garbage":        "Bearer not.a.token",
		"wrong secret":   "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"userId": 1, "exp": exp}),
		"expired":        "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"userId": 1, "exp": time.Now().Add(-time.Hour).Unix()}),
		"HS512":          "Bearer " + sign(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"userId": 1, "exp": exp}),
		"no user claim":  "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"exp": exp}),
		"zero user":      "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"userId": 0, "exp": exp}),
		"fractional":     "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"userId": 1.5, "exp": exp}),
	}
	for name, authz := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, call(r, authz).Code)
		})
	}
}

func TestAuthMiddleware_NoSecret(t *testing.T) {
	w := call(authRouter(""), "Bearer x.y.z")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
