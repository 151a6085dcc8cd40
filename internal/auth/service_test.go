package auth

import (
	"os"
	"testing"

	"github.com/google/uuid"

	"magnifiq/pkg/models"
)

type fakeUserRepo struct {
	users   map[string]*models.User
	updated int
}

func (r *fakeUserRepo) GetByEmail(email string) (*models.User, error) {
	if u, ok := r.users[email]; ok {
		return u, nil
	}
	return nil, os.ErrNotExist
}

func (r *fakeUserRepo) GetByID(id uuid.UUID) (*models.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, os.ErrNotExist
}

func (r *fakeUserRepo) Update(user *models.User) error {
	r.updated++
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeUserRepo) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	svc := NewService(nil)
	hash, err := svc.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	repo := &fakeUserRepo{users: map[string]*models.User{
		"ops@example.com": {
			BaseModel: models.BaseModel{ID: uuid.New()},
			Email:     "ops@example.com",
			Password:  hash,
			Role:      "admin",
			IsActive:  true,
		},
	}}
	return NewService(repo), repo
}

func TestLoginIssuesValidTokens(t *testing.T) {
	svc, repo := newTestService(t)

	resp, err := svc.Login(LoginRequest{Email: "ops@example.com", Password: "hunter2"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}
	if repo.updated != 1 {
		t.Fatalf("expected last login update, got %d updates", repo.updated)
	}

	claims, err := svc.ValidateToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Type != "access" {
		t.Fatalf("expected access token, got %q", claims.Type)
	}
	if claims.Email != "ops@example.com" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Login(LoginRequest{Email: "ops@example.com", Password: "wrong"}); err == nil {
		t.Fatal("expected login to fail")
	}
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	svc, repo := newTestService(t)
	repo.users["ops@example.com"].IsActive = false

	if _, err := svc.Login(LoginRequest{Email: "ops@example.com", Password: "hunter2"}); err == nil {
		t.Fatal("expected login to fail for disabled account")
	}
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Login(LoginRequest{Email: "ops@example.com", Password: "hunter2"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := svc.RefreshToken(resp.AccessToken); err == nil {
		t.Fatal("expected refresh with an access token to fail")
	}
	if _, err := svc.RefreshToken(resp.RefreshToken); err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
}
