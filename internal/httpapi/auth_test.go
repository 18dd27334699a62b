package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"glowpos/backend/internal/domain"
	"glowpos/backend/internal/store/memory"
)

func newTestAuth(t *testing.T, users ...domain.UserAccount) (*AuthManager, *memory.Store) {
	t.Helper()
	repo := memory.New()
	for _, user := range users {
		if err := repo.CreateUser(context.Background(), user); err != nil {
			t.Fatalf("create user %s: %v", user.Username, err)
		}
	}
	return NewAuthManager(testSecret, time.Hour, repo), repo
}

func TestLoginIssuesParseableToken(t *testing.T) {
	auth, _ := newTestAuth(t, domain.UserAccount{
		Username: "sup1",
		Password: "super-secret",
		Role:     domain.RoleSupervisor,
		Active:   true,
	})

	resp, err := auth.Login(domain.LoginRequest{Username: "sup1", Password: "super-secret"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleSupervisor {
		t.Fatalf("role = %q", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "sup1" || actor.Role != domain.RoleSupervisor {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	auth, _ := newTestAuth(t, domain.UserAccount{
		Username: "gone",
		Password: "whatever1",
		Role:     domain.RoleCashier,
		Active:   false,
	})

	if _, err := auth.Login(domain.LoginRequest{Username: "gone", Password: "whatever1"}); err == nil {
		t.Fatal("expected inactive account to be rejected")
	}
}

func TestLoginUpgradesPlaintextPassword(t *testing.T) {
	auth, repo := newTestAuth(t, domain.UserAccount{
		Username: "legacy",
		Password: "plain-text-pw",
		Role:     domain.RoleCashier,
		Active:   true,
	})

	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plain-text-pw"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, user := range users {
		if user.Username != "legacy" {
			continue
		}
		if !strings.HasPrefix(user.Password, "$2") {
			t.Fatalf("stored password not upgraded to bcrypt: %q", user.Password)
		}
		return
	}
	t.Fatal("legacy user not found")
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	auth, repo := newTestAuth(t, domain.UserAccount{
		Username: "cash1",
		Password: "cashier-pw",
		Role:     domain.RoleCashier,
		Active:   true,
	})
	resp, err := auth.Login(domain.LoginRequest{Username: "cash1", Password: "cashier-pw"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	other := NewAuthManager("another-secret-that-is-32-chars!!", time.Hour, repo)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("expected token signed with a different secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth, _ := newTestAuth(t, domain.UserAccount{
		Username: "cash2",
		Password: "cashier-pw",
		Role:     domain.RoleCashier,
		Active:   true,
	})

	token, err := auth.sign("cash2", domain.RoleCashier, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestCreateCashierValidation(t *testing.T) {
	auth, _ := newTestAuth(t)

	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "ab", Password: "longenough"}); err == nil {
		t.Fatal("expected short username to be rejected")
	}
	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "newcashier", Password: "123"}); err == nil {
		t.Fatal("expected short password to be rejected")
	}

	created, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "NewCashier", Password: "station-7"})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if created.Username != "newcashier" {
		t.Fatalf("username = %q, want lowercased", created.Username)
	}
	if created.Role != domain.RoleCashier {
		t.Fatalf("role = %q", created.Role)
	}

	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "newcashier", Password: "station-7"}); err == nil {
		t.Fatal("expected duplicate username to be rejected")
	}

	cashiers := auth.ListCashiers()
	if len(cashiers) != 1 || cashiers[0].Username != "newcashier" {
		t.Fatalf("cashiers = %+v", cashiers)
	}

	if _, err := auth.Login(domain.LoginRequest{Username: "newcashier", Password: "station-7"}); err != nil {
		t.Fatalf("new cashier login failed: %v", err)
	}
}
