package auth_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/auth"
	_ "github.com/atlas-ops/atlas-ops/testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type authFixture struct {
	router  chi.Router
	service *auth.Service
	repo    *stubRepo
}

func newAuthFixture(t *testing.T, users ...*auth.User) *authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newStubRepo(users...)
	issuer := auth.NewTokenIssuer("test-secret", 15*time.Minute)
	store := auth.NewRefreshStore(client, time.Hour)
	service := auth.NewService(repo, issuer, store)

	logger := testLogger()
	handler := auth.NewHandler(logger, service)
	authMW := auth.NewMiddleware(logger, issuer, service)
	accessMW := &access.Middleware{Logger: logger}

	router := chi.NewRouter()
	router.Use(authMW.Principal)
	handler.MountRoutes(router, authMW.RequireAuth, accessMW.RequireRole(access.RoleAdmin))
	return &authFixture{router: router, service: service, repo: repo}
}

func doJSON(t *testing.T, router chi.Router, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestLoginReturnsTokenPair(t *testing.T) {
	fix := newAuthFixture(t, &auth.User{
		ID:           1,
		Email:        "ops@atlas.test",
		Name:         "Ops Admin",
		PasswordHash: hashPassword(t, "correct-horse"),
		Role:         access.RoleAdmin,
		IsActive:     true,
	})

	res := doJSON(t, fix.router, http.MethodPost, "/login",
		`{"email":"ops@atlas.test","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusOK, res.Code)

	var payload struct {
		User struct {
			ID   int64  `json:"id"`
			Role string `json:"role"`
		} `json:"user"`
		Tokens auth.TokenPair `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	require.Equal(t, int64(1), payload.User.ID)
	require.Equal(t, "admin", payload.User.Role)
	require.NotEmpty(t, payload.Tokens.AccessToken)
	require.NotEmpty(t, payload.Tokens.RefreshToken)
}

func TestLoginInvalidCredentials(t *testing.T) {
	fix := newAuthFixture(t, &auth.User{
		ID:           1,
		Email:        "ops@atlas.test",
		PasswordHash: hashPassword(t, "correct-horse"),
		IsActive:     true,
	})

	res := doJSON(t, fix.router, http.MethodPost, "/login",
		`{"email":"ops@atlas.test","password":"wrong-password"}`, "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginValidation(t *testing.T) {
	fix := newAuthFixture(t)
	res := doJSON(t, fix.router, http.MethodPost, "/login", `{"email":"not-an-email","password":"short"}`, "")
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	fix := newAuthFixture(t, &auth.User{
		ID:           1,
		Email:        "ops@atlas.test",
		PasswordHash: hashPassword(t, "correct-horse"),
		IsActive:     true,
	})

	login := doJSON(t, fix.router, http.MethodPost, "/login",
		`{"email":"ops@atlas.test","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusOK, login.Code)

	var session struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &session))

	res := doJSON(t, fix.router, http.MethodPost, "/refresh",
		`{"refreshToken":"`+session.Tokens.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, res.Code)

	// Replaying the already rotated token fails.
	res = doJSON(t, fix.router, http.MethodPost, "/refresh",
		`{"refreshToken":"`+session.Tokens.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestMeRequiresAuth(t *testing.T) {
	fix := newAuthFixture(t)
	res := doJSON(t, fix.router, http.MethodGet, "/me", "", "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestMeReturnsCurrentUser(t *testing.T) {
	fix := newAuthFixture(t, &auth.User{
		ID:           9,
		Email:        "me@atlas.test",
		Name:         "Me",
		PasswordHash: hashPassword(t, "correct-horse"),
		Role:         access.RoleEmployee,
		Department:   "Engineering",
		IsActive:     true,
	})

	login := doJSON(t, fix.router, http.MethodPost, "/login",
		`{"email":"me@atlas.test","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusOK, login.Code)
	var session struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &session))

	res := doJSON(t, fix.router, http.MethodGet, "/me", "", session.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, res.Code)

	var me struct {
		ID         int64  `json:"id"`
		Department string `json:"department"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &me))
	require.Equal(t, int64(9), me.ID)
	require.Equal(t, "Engineering", me.Department)
}

func TestRegisterRequiresAdmin(t *testing.T) {
	fix := newAuthFixture(t, &auth.User{
		ID:           1,
		Email:        "emp@atlas.test",
		PasswordHash: hashPassword(t, "correct-horse"),
		Role:         access.RoleEmployee,
		IsActive:     true,
	})

	login := doJSON(t, fix.router, http.MethodPost, "/login",
		`{"email":"emp@atlas.test","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusOK, login.Code)
	var session struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &session))

	res := doJSON(t, fix.router, http.MethodPost, "/register",
		`{"email":"new@atlas.test","name":"New","password":"s3cret-pass","role":"employee"}`,
		session.Tokens.AccessToken)
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestRegisterAsAdmin(t *testing.T) {
	fix := newAuthFixture(t, &auth.User{
		ID:           1,
		Email:        "admin@atlas.test",
		PasswordHash: hashPassword(t, "correct-horse"),
		Role:         access.RoleAdmin,
		IsActive:     true,
	})

	login := doJSON(t, fix.router, http.MethodPost, "/login",
		`{"email":"admin@atlas.test","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusOK, login.Code)
	var session struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &session))

	res := doJSON(t, fix.router, http.MethodPost, "/register",
		`{"email":"new@atlas.test","name":"New Hire","password":"s3cret-pass","role":"manager","department":"IT"}`,
		session.Tokens.AccessToken)
	require.Equal(t, http.StatusCreated, res.Code)

	var created struct {
		ID   int64  `json:"id"`
		Role string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	require.NotZero(t, created.ID)
	require.Equal(t, "manager", created.Role)
}

func TestDeactivatedUserLosesAccess(t *testing.T) {
	user := &auth.User{
		ID:           1,
		Email:        "soon-gone@atlas.test",
		PasswordHash: hashPassword(t, "correct-horse"),
		Role:         access.RoleEmployee,
		IsActive:     true,
	}
	fix := newAuthFixture(t, user)

	login := doJSON(t, fix.router, http.MethodPost, "/login",
		`{"email":"soon-gone@atlas.test","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusOK, login.Code)
	var session struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &session))

	user.IsActive = false
	res := doJSON(t, fix.router, http.MethodGet, "/me", "", session.Tokens.AccessToken)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}
