package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/civil-registry-api/internal/models"
	"github.com/noah-isme/civil-registry-api/internal/repository"
	appErrors "github.com/noah-isme/civil-registry-api/pkg/errors"
)

func newAuthFixture(t *testing.T, active bool) (*AuthService, *repository.UserRepository, *models.User) {
	t.Helper()
	repo := repository.NewUserRepository(repository.NewMemoryStore(nil))
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           "user-1",
		Email:        "clerk@registry.test",
		PasswordHash: string(hash),
		FullName:     "Clerk One",
		Role:         models.RoleClerk,
		Active:       active,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), user))
	svc := NewAuthService(repo, nil, zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "test"})
	return svc, repo, user
}

func TestAuthServiceLogin(t *testing.T) {
	svc, repo, user := newAuthFixture(t, true)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "Clerk@Registry.test", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, user.ID, resp.User.ID)

	stored, err := repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleClerk, claims.Role)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc, _, _ := newAuthFixture(t, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "clerk@registry.test", Password: "wrong"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@registry.test", Password: "password123"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "bad", Password: ""})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceLoginInactive(t *testing.T) {
	svc, _, _ := newAuthFixture(t, false)
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "clerk@registry.test", Password: "password123"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInactiveAccount))
	assert.Equal(t, 403, appErrors.FromError(err).Status)
}

func TestAuthServiceChangePassword(t *testing.T) {
	svc, _, user := newAuthFixture(t, true)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, user.ID, models.ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "newpassword"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	require.NoError(t, svc.ChangePassword(ctx, user.ID, models.ChangePasswordRequest{CurrentPassword: "password123", NewPassword: "newpassword"}))

	_, err = svc.Login(ctx, models.LoginRequest{Email: user.Email, Password: "password123"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
	_, err = svc.Login(ctx, models.LoginRequest{Email: user.Email, Password: "newpassword"})
	assert.NoError(t, err)
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc, _, user := newAuthFixture(t, true)

	_, err := svc.ValidateToken("garbage")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	other := NewAuthService(nil, nil, nil, AuthConfig{AccessTokenSecret: "different"})
	token, err := other.generateAccessToken(user, time.Now())
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	expired, err := svc.generateAccessToken(user, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: user.ID})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceMe(t *testing.T) {
	svc, _, user := newAuthFixture(t, true)
	me, err := svc.Me(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, me.Email)

	_, err = svc.Me(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
