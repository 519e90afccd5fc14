package service

import (
	"context"
	"testing"
	"textlens-go/internal/model"
	"textlens-go/internal/repository"
	"textlens-go/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newUserService(t *testing.T) (UserService, *token.JWTManager, *token.MemoryRevocationStore) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}))

	jwtManager := token.NewJWTManager("test-secret", 1)
	revocation := token.NewMemoryRevocationStore()
	return NewUserService(repository.NewUserRepository(db), jwtManager, revocation), jwtManager, revocation
}

func TestUserService_SignUpAndSignIn(t *testing.T) {
	svc, jwtManager, _ := newUserService(t)
	ctx := context.Background()

	conf, err := svc.SignUp(ctx, SignUpInput{Email: "ana@example.com", Password: "segredo1", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "Cadastro realizado com sucesso", conf.Message)

	_, err = svc.SignUp(ctx, SignUpInput{Email: "ana@example.com", Password: "outra123", Name: "Ana 2"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	tok, err := svc.SignIn(ctx, "ana@example.com", "segredo1")
	require.NoError(t, err)
	claims, err := jwtManager.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", claims.Email)

	_, err = svc.SignIn(ctx, "ana@example.com", "errada")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.SignIn(ctx, "ninguem@example.com", "segredo1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserService_SignOutRevokesToken(t *testing.T) {
	svc, _, revocation := newUserService(t)
	ctx := context.Background()
	_, err := svc.SignUp(ctx, SignUpInput{Email: "bia@example.com", Password: "segredo1", Name: "Bia"})
	require.NoError(t, err)
	tok, err := svc.SignIn(ctx, "bia@example.com", "segredo1")
	require.NoError(t, err)

	conf, err := svc.SignOut(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "Logout realizado com sucesso", conf.Message)

	revoked, err := revocation.IsRevoked(ctx, tok)
	require.NoError(t, err)
	assert.True(t, revoked)

	_, err = svc.SignOut(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserService_UpdateAndProfile(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()
	for _, email := range []string{"a@example.com", "b@example.com"} {
		_, err := svc.SignUp(ctx, SignUpInput{Email: email, Password: "segredo1", Name: "X"})
		require.NoError(t, err)
	}

	name := "Carla"
	password := "novaSenha"
	empty := ""
	conf, err := svc.Update(ctx, 1, UpdateUserInput{Name: &name, Password: &password, Email: &empty})
	require.NoError(t, err)
	assert.Equal(t, "Usuário atualizado com sucesso", conf.Message)

	user, err := svc.GetProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Carla", user.Name)
	assert.Equal(t, "a@example.com", user.Email)

	_, err = svc.SignIn(ctx, "a@example.com", "novaSenha")
	assert.NoError(t, err)

	taken := "b@example.com"
	_, err = svc.Update(ctx, 1, UpdateUserInput{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.Update(ctx, 99, UpdateUserInput{Name: &name})
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = svc.GetProfile(ctx, 99)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
