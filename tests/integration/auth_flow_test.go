package integration

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDB     *TestDB
	testServer *TestServer
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		panic("failed to set up test database: " + err.Error())
	}
	testDB = db
	testServer = NewTestServer(db.DB)

	code := m.Run()

	testServer.Close()
	testDB.Teardown(ctx)
	os.Exit(code)
}

type authResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Role     string `json:"role"`
	} `json:"user"`
}

func registerUser(t *testing.T, suffix string) (authResponse, string) {
	t.Helper()

	username, email, password := TestCredentials(suffix)
	resp, err := testServer.Request(http.MethodPost, "/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var auth authResponse
	require.NoError(t, ParseJSONResponse(resp, &auth))
	return auth, password
}

func TestRegisterAndLogin(t *testing.T) {
	auth, password := registerUser(t, "login")

	assert.NotEmpty(t, auth.AccessToken)
	assert.NotEmpty(t, auth.RefreshToken)
	assert.Equal(t, "bearer", auth.TokenType)
	assert.Equal(t, "user", auth.User.Role)

	// Login with the email as identifier
	resp, err := testServer.Request(http.MethodPost, "/auth/login", map[string]string{
		"identifier": auth.User.Email,
		"password":   password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loggedIn authResponse
	require.NoError(t, ParseJSONResponse(resp, &loggedIn))
	assert.Equal(t, auth.User.ID, loggedIn.User.ID)

	// Access token works on a protected route
	meResp, err := testServer.RequestWithAuth(http.MethodGet, "/users/me", loggedIn.AccessToken, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, meResp.StatusCode)
	meResp.Body.Close()
}

func TestLoginWrongPasswordLocksAccount(t *testing.T) {
	auth, password := registerUser(t, "lockout")

	// Every wrong attempt gets the generic 401, including the one that
	// crosses the lockout threshold
	for i := 0; i < 5; i++ {
		resp, err := testServer.Request(http.MethodPost, "/auth/login", map[string]string{
			"identifier": auth.User.Email,
			"password":   "Definitely-Wrong-1",
		}, nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	// The lock also applies to the correct password
	resp, err := testServer.Request(http.MethodPost, "/auth/login", map[string]string{
		"identifier": auth.User.Email,
		"password":   password,
	}, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
}

func TestRefreshRotation(t *testing.T) {
	auth, _ := registerUser(t, "refresh")

	resp, err := testServer.Request(http.MethodPost, "/auth/refresh", map[string]string{
		"refresh_token": auth.RefreshToken,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rotated authResponse
	require.NoError(t, ParseJSONResponse(resp, &rotated))
	assert.NotEqual(t, auth.RefreshToken, rotated.RefreshToken)

	// The old refresh token is revoked after rotation
	resp, err = testServer.Request(http.MethodPost, "/auth/refresh", map[string]string{
		"refresh_token": auth.RefreshToken,
	}, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	auth, _ := registerUser(t, "logout")

	resp, err := testServer.RequestWithAuth(http.MethodPost, "/auth/logout", auth.AccessToken, map[string]string{
		"refresh_token": auth.RefreshToken,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	meResp, err := testServer.RequestWithAuth(http.MethodGet, "/users/me", auth.AccessToken, nil)
	require.NoError(t, err)
	defer meResp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, meResp.StatusCode)
}

func TestPasswordResetFlow(t *testing.T) {
	auth, _ := registerUser(t, "reset")

	resp, err := testServer.Request(http.MethodPost, "/auth/forgot-password", map[string]string{
		"identifier": auth.User.Email,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	email := testServer.EmailService.LastEmail()
	require.NotNil(t, email)
	require.Equal(t, auth.User.Email, email.To)

	newPassword := "BrandNewPassword456!"
	resp, err = testServer.Request(http.MethodPost, "/auth/reset-password", map[string]string{
		"token":        email.Token,
		"new_password": newPassword,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Token is single use
	resp, err = testServer.Request(http.MethodPost, "/auth/reset-password", map[string]string{
		"token":        email.Token,
		"new_password": "AnotherPassword789!",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// New password works
	resp, err = testServer.Request(http.MethodPost, "/auth/login", map[string]string{
		"identifier": auth.User.Email,
		"password":   newPassword,
	}, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMFASetupAndLogin(t *testing.T) {
	auth, password := registerUser(t, "mfa")

	resp, err := testServer.RequestWithAuth(http.MethodPost, "/mfa/setup", auth.AccessToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var setup struct {
		Secret     string `json:"secret"`
		OTPAuthURL string `json:"otpauth_url"`
		QRCode     string `json:"qr_code"`
	}
	require.NoError(t, ParseJSONResponse(resp, &setup))
	require.NotEmpty(t, setup.Secret)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)

	resp, err = testServer.RequestWithAuth(http.MethodPost, "/mfa/setup/confirm", auth.AccessToken, map[string]string{
		"code": code,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var confirmed struct {
		BackupCodes []string `json:"backup_codes"`
	}
	require.NoError(t, ParseJSONResponse(resp, &confirmed))
	assert.Len(t, confirmed.BackupCodes, 10)

	// Login without a code now reports MFA as required
	resp, err = testServer.Request(http.MethodPost, "/auth/login", map[string]string{
		"identifier": auth.User.Email,
		"password":   password,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// A backup code completes the login
	resp, err = testServer.Request(http.MethodPost, "/auth/login", map[string]string{
		"identifier": auth.User.Email,
		"password":   password,
		"mfa_code":   confirmed.BackupCodes[0],
	}, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
