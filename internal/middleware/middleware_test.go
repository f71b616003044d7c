package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civil-registry-api/internal/models"
	"github.com/noah-isme/civil-registry-api/internal/repository"
	appErrors "github.com/noah-isme/civil-registry-api/pkg/errors"
)

type stubTokens struct {
	claims *models.JWTClaims
	err    error
	seen   string
}

func (s *stubTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	s.seen = token
	return s.claims, s.err
}

type stubUsers map[string]*models.User

func (s stubUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s[id]; ok {
		return user, nil
	}
	return nil, repository.ErrNotFound
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	final := func(c *gin.Context) {
		actor, _ := CurrentActor(c)
		c.JSON(http.StatusOK, gin.H{"actor": actor.ID})
	}
	r.GET("/things/:id", append(handlers, final)...)
	return r
}

func perform(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	tokens := &stubTokens{claims: &models.JWTClaims{UserID: "u1"}}
	r := newRouter(JWT(tokens))

	w := perform(r, "/things/1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = perform(r, "/things/1", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, w))

	w = perform(r, "/things/1", "bearer abc")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", tokens.seen)
}

func TestJWTPropagatesValidationError(t *testing.T) {
	tokens := &stubTokens{err: appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")}
	w := perform(newRouter(JWT(tokens)), "/things/1", "Bearer bad")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestActorLoadsUser(t *testing.T) {
	users := stubUsers{
		"u1": {ID: "u1", Role: models.RoleClerk, Region: "OROMIA", Active: true},
		"u2": {ID: "u2", Role: models.RoleClerk, Active: false},
	}

	w := perform(newRouter(JWT(&stubTokens{claims: &models.JWTClaims{UserID: "u1"}}), Actor(users)), "/things/1", "Bearer t")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"actor":"u1"}`, w.Body.String())

	w = perform(newRouter(JWT(&stubTokens{claims: &models.JWTClaims{UserID: "u2"}}), Actor(users)), "/things/1", "Bearer t")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, errorCode(t, w))

	w = perform(newRouter(JWT(&stubTokens{claims: &models.JWTClaims{UserID: "gone"}}), Actor(users)), "/things/1", "Bearer t")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRBAC(t *testing.T) {
	users := stubUsers{
		"admin": {ID: "admin", Role: models.RoleAdmin, Active: true},
		"clerk": {ID: "clerk", Role: models.RoleClerk, Active: true},
	}
	chain := func(userID string, guard gin.HandlerFunc) *gin.Engine {
		return newRouter(JWT(&stubTokens{claims: &models.JWTClaims{UserID: userID}}), Actor(users), guard)
	}

	assert.Equal(t, http.StatusOK, perform(chain("admin", RequireRoles(models.RoleAdmin)), "/things/x", "Bearer t").Code)
	assert.Equal(t, http.StatusForbidden, perform(chain("clerk", RequireRoles(models.RoleAdmin)), "/things/x", "Bearer t").Code)
	assert.Equal(t, http.StatusOK, perform(chain("clerk", RBAC(string(models.RoleAdmin), Self)), "/things/clerk", "Bearer t").Code)
	assert.Equal(t, http.StatusForbidden, perform(chain("clerk", RBAC(string(models.RoleAdmin), Self)), "/things/admin", "Bearer t").Code)

	assert.Equal(t, http.StatusUnauthorized, perform(newRouter(RequireRoles(models.RoleAdmin)), "/things/x", "").Code)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/", func(c *gin.Context) {
		SetMeta(c, "quality", 0.9)
		c.JSON(http.StatusOK, ExtractMeta(c))
	})
	w := perform(r, "/", "")
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, 0.9, meta["quality"])
	assert.Contains(t, meta, processingTimeMS)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))
}
