package service_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pomodoro/sessions/internal/clock"
	"pomodoro/sessions/internal/repository"
	"pomodoro/sessions/internal/service"
	"pomodoro/sessions/internal/testutil"
)

func newAuthService(t *testing.T, clk clock.Clock) *service.AuthService {
	t.Helper()
	database := testutil.OpenDB(t)
	return service.NewAuthService(repository.NewUserRepository(database), "test-secret", time.Hour).WithClock(clk)
}

func TestRegisterLoginAndParse(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t, clock.NewManual(start))

	registered, apiErr := svc.Register(ctx, "  Focus@Example.com ", "123456")
	require.Nil(t, apiErr)
	assert.Equal(t, "focus@example.com", registered.User.Email)
	assert.Empty(t, registered.User.PasswordHash)
	assert.True(t, start.Add(time.Hour).Equal(registered.ExpiresAt))

	userID, apiErr := svc.ParseToken(registered.Token)
	require.Nil(t, apiErr)
	assert.Equal(t, registered.User.ID, userID)

	loggedIn, apiErr := svc.Login(ctx, "focus@example.com", "123456")
	require.Nil(t, apiErr)
	assert.Equal(t, registered.User.ID, loggedIn.User.ID)

	_, apiErr = svc.Login(ctx, "focus@example.com", "wrong-password")
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t, clock.NewManual(start))

	cases := []struct {
		name     string
		email    string
		password string
		status   int
		code     string
	}{
		{name: "empty email", email: " ", password: "123456", status: http.StatusBadRequest, code: "validation_error"},
		{name: "malformed email", email: "not-an-email", password: "123456", status: http.StatusBadRequest, code: "validation_error"},
		{name: "short password", email: "a@example.com", password: "123", status: http.StatusBadRequest, code: "validation_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, apiErr := svc.Register(ctx, tc.email, tc.password)
			require.NotNil(t, apiErr)
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.code, apiErr.Code)
		})
	}

	_, apiErr := svc.Register(ctx, "dup@example.com", "123456")
	require.Nil(t, apiErr)
	_, apiErr = svc.Register(ctx, "DUP@example.com", "123456")
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "email_exists", apiErr.Code)
}

func TestParseTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(start)
	svc := newAuthService(t, clk)

	result, apiErr := svc.Register(ctx, "late@example.com", "123456")
	require.Nil(t, apiErr)

	clk.Advance(2 * time.Hour)
	_, apiErr = svc.ParseToken(result.Token)
	require.NotNil(t, apiErr)
	assert.Equal(t, "token expired", apiErr.Message)

	other := newAuthService(t, clock.NewManual(start))
	foreign, apiErr := other.Register(ctx, "other@example.com", "123456")
	require.Nil(t, apiErr)

	strict := service.NewAuthService(nil, "another-secret", time.Hour).WithClock(clock.NewManual(start))
	_, apiErr = strict.ParseToken(foreign.Token)
	require.NotNil(t, apiErr)
	assert.Equal(t, "invalid token", apiErr.Message)

	_, apiErr = svc.ParseToken("garbage")
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}
