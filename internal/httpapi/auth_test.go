package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/service"
)

type fakeAuthenticator struct {
	user domain.UserAccount
	err  error
}

func (f fakeAuthenticator) Authenticate(_ context.Context, username string, password string) (domain.UserAccount, error) {
	if f.err != nil {
		return domain.UserAccount{}, f.err
	}
	if username != f.user.Username || password != "secret" {
		return domain.UserAccount{}, service.ErrInvalidCredentials
	}
	return f.user, nil
}

func newFakeAuth(secret string) *AuthManager {
	return NewAuthManager(secret, time.Hour, fakeAuthenticator{user: domain.UserAccount{
		ID: 7, Username: "kassa", Role: domain.RoleWorker, Active: true,
	}})
}

func TestLoginIssuesParseableToken(t *testing.T) {
	auth := newFakeAuth("s3cret")

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: " kassa ", Password: "secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.User.Username != "kassa" || resp.ExpiresAt == "" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.UserID != 7 || actor.Username != "kassa" || actor.Role != domain.RoleWorker {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginPropagatesCredentialErrors(t *testing.T) {
	auth := newFakeAuth("s3cret")
	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "kassa", Password: "bad"}); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	inactive := NewAuthManager("s3cret", time.Hour, fakeAuthenticator{err: service.ErrInactiveAccount})
	if _, err := inactive.Login(context.Background(), domain.LoginRequest{Username: "kassa", Password: "secret"}); !errors.Is(err, service.ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	issuer := newFakeAuth("one")
	verifier := newFakeAuth("two")

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "kassa", Password: "secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("token signed with another secret must be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := newFakeAuth("s3cret")
	token, err := auth.sign(domain.UserAccount{ID: 7, Username: "kassa", Role: domain.RoleWorker}, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expired token must be rejected")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	if _, err := newFakeAuth("s3cret").ParseToken("not-a-jwt"); err == nil {
		t.Fatalf("garbage token must be rejected")
	}
}
