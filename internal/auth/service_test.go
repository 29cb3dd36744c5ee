package auth

import (
	"errors"
	"testing"
	"time"
)

type testEnv struct {
	svc   *Service
	repo  *InMemoryRepository
	clock *time.Time
	slept *[]time.Duration
}

func newTestService(t *testing.T, opts ...ServiceOption) *testEnv {
	t.Helper()

	repo := NewInMemoryRepository()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var slept []time.Duration

	base := []ServiceOption{
		WithSigningKey([]byte("service-test-key")),
		WithHasher(NewHasher(1000, DefaultEntropy)),
		WithClock(func() time.Time { return now }),
		WithSleep(func(d time.Duration) { slept = append(slept, d) }),
	}
	svc, err := NewService(repo, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &testEnv{svc: svc, repo: repo, clock: &now, slept: &slept}
}

func mustRegister(t *testing.T, svc *Service, username, email, password string) *User {
	t.Helper()
	u, err := svc.Register(username, email, password)
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return u
}

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	env := newTestService(t)
	a := mustRegister(t, env.svc, "alice", "alice@example.com", "Str0ngPass!!")
	b := mustRegister(t, env.svc, "bob", "bob@example.com", "Str0ngPass!!")
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("expected sequential ids, got %d and %d", a.ID, b.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestService(t)
	if _, err := env.svc.Register("   ", "a@example.com", "Str0ngPass!!"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty username, got %v", err)
	}
	if _, err := env.svc.Register("alice", "not-an-email", "Str0ngPass!!"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad email, got %v", err)
	}
	if _, err := env.svc.Register("alice", "alice@example.com", "short"); !errors.Is(err, ErrPolicyViolation) {
		t.Fatalf("expected ErrPolicyViolation, got %v", err)
	}
	mustRegister(t, env.svc, "alice", "alice@example.com", "Str0ngPass!!")
	if _, err := env.svc.Register("Alice", "alice2@example.com", "Str0ngPass!!"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestLoginIssuesDistinctTokensPerCall(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "alice", "alice@example.com", "Str0ngPass!!")

	first, err := env.svc.Login("alice", "Str0ngPass!!", "1.2.3.4")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, err := env.svc.Login("alice", "Str0ngPass!!", "1.2.3.4")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if first.AccessToken == second.AccessToken {
		t.Fatal("expected distinct access tokens")
	}
	if first.RefreshToken == second.RefreshToken {
		t.Fatal("expected distinct refresh tokens")
	}
	if first.AccessToken == first.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "alice", "alice@example.com", "Str0ngPass!!")

	_, wrongPw := env.svc.Login("alice", "not-the-password", "1.2.3.4")
	_, unknown := env.svc.Login("nobody", "whatever", "1.2.3.4")

	if !errors.Is(wrongPw, ErrInvalidCredentials) || !errors.Is(unknown, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", wrongPw, unknown)
	}
	if wrongPw.Error() != unknown.Error() {
		t.Fatalf("error shapes differ: %q vs %q", wrongPw, unknown)
	}
}

func TestLoginUpdatesLastLogin(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "alice", "alice@example.com", "Str0ngPass!!")
	if _, err := env.svc.Login("alice", "Str0ngPass!!", "1.2.3.4"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	u, _ := env.repo.Get("alice")
	if !u.LastLogin.Equal(*env.clock) {
		t.Fatalf("last login not stamped: %v", u.LastLogin)
	}
}

func TestLoginRateLimitHidesThrottling(t *testing.T) {
	env := newTestService(t, WithRateLimiter(NewRateLimiter(2, 0)))
	mustRegister(t, env.svc, "alice", "alice@example.com", "Str0ngPass!!")

	for i := 0; i < 2; i++ {
		if _, err := env.svc.Login("alice", "wrong", "9.9.9.9"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	// Allowance exhausted: even the correct password reports invalid credentials.
	_, err := env.svc.Login("alice", "Str0ngPass!!", "9.9.9.9")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	var throttled bool
	for _, ev := range env.svc.AuditEvents() {
		if ev.Action == "login.rate_limited" {
			throttled = true
		}
	}
	if !throttled {
		t.Fatal("expected login.rate_limited audit event")
	}
}

func TestFederatedAccountNeverAcceptsPassword(t *testing.T) {
	env := newTestService(t)
	result, err := env.svc.FederatedLogin(FederatedClaims{
		Provider:      "google",
		ExternalID:    "g-123",
		Email:         "fred@example.com",
		DisplayName:   "Fred",
		EmailVerified: true,
	})
	if err != nil {
		t.Fatalf("FederatedLogin: %v", err)
	}
	if result.Username != "fred" {
		t.Fatalf("unexpected derived username: %s", result.Username)
	}

	for _, pw := range []string{"", "anything"} {
		if _, err := env.svc.Login("fred", pw, "1.2.3.4"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials for %q, got %v", pw, err)
		}
	}

	u, _ := env.repo.Get("fred")
	if u.Identity.Kind != IdentityFederated || u.Identity.Federated == nil {
		t.Fatal("expected federated identity variant")
	}
	if u.Identity.Federated.Provider != "google" || u.Identity.Federated.ExternalID != "g-123" {
		t.Fatalf("provider record incomplete: %#v", u.Identity.Federated)
	}
}

func TestFederatedLoginResolvesUsernameCollisions(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "sam", "sam@example.com", "Str0ngPass!!")

	result, err := env.svc.FederatedLogin(FederatedClaims{
		Provider:      "google",
		ExternalID:    "g-9",
		Email:         "sam@elsewhere.com",
		EmailVerified: true,
	})
	if err != nil {
		t.Fatalf("FederatedLogin: %v", err)
	}
	if result.Username != "sam1" {
		t.Fatalf("expected numeric-suffix resolution, got %s", result.Username)
	}
}

func TestFederatedLoginRejectsUnverifiedEmail(t *testing.T) {
	env := newTestService(t)
	_, err := env.svc.FederatedLogin(FederatedClaims{
		Provider:   "google",
		ExternalID: "g-1",
		Email:      "eve@example.com",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestFederatedLoginReusesExistingAccount(t *testing.T) {
	env := newTestService(t)
	claims := FederatedClaims{
		Provider:      "google",
		ExternalID:    "g-123",
		Email:         "fred@example.com",
		EmailVerified: true,
	}
	if _, err := env.svc.FederatedLogin(claims); err != nil {
		t.Fatalf("first FederatedLogin: %v", err)
	}
	if _, err := env.svc.FederatedLogin(claims); err != nil {
		t.Fatalf("second FederatedLogin: %v", err)
	}
	if _, ok := env.repo.Get("fred1"); ok {
		t.Fatal("second federated login must not create a duplicate account")
	}
}

func TestRefreshRotation(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "alice", "alice@example.com", "Str0ngPass!!")
	login, err := env.svc.Login("alice", "Str0ngPass!!", "1.2.3.4")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	rotated, err := env.svc.Refresh(login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.AccessToken == login.AccessToken {
		t.Fatal("expected a fresh access token")
	}

	// The consumed token is revoked.
	if _, err := env.svc.Refresh(login.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for consumed refresh token, got %v", err)
	}
	// The newly issued one succeeds exactly once more.
	if _, err := env.svc.Refresh(rotated.RefreshToken); err != nil {
		t.Fatalf("rotated token should refresh once: %v", err)
	}
	if _, err := env.svc.Refresh(rotated.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on reuse, got %v", err)
	}
}

func TestRefreshWithoutRotationKeepsTokenLive(t *testing.T) {
	env := newTestService(t, WithRefreshRotation(false))
	mustRegister(t, env.svc, "alice", "alice@example.com", "Str0ngPass!!")
	login, err := env.svc.Login("alice", "Str0ngPass!!", "1.2.3.4")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := env.svc.Refresh(login.RefreshToken); err != nil {
			t.Fatalf("refresh %d without rotation: %v", i+1, err)
		}
	}
}

func TestRefreshRotationUsesConfiguredTTL(t *testing.T) {
	ttl := 48 * time.Hour
	env := newTestService(t, WithRefreshTTL(ttl))
	mustRegister(t, env.svc, "alice", "alice@example.com", "Str0ngPass!!")
	login, err := env.svc.Login("alice", "Str0ngPass!!", "1.2.3.4")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	rotated, err := env.svc.Refresh(login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	codec := NewTokenCodec([]byte("service-test-key"))
	_, exp, err := codec.DecodeRefresh(rotated.RefreshToken)
	if err != nil {
		t.Fatalf("DecodeRefresh: %v", err)
	}
	want := env.clock.Add(ttl)
	if !exp.Equal(want.Truncate(time.Second)) {
		t.Fatalf("rotated refresh expiry %v, want %v", exp, want)
	}
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := NewInMemoryRepository()
	svc, err := NewService(repo,
		WithSigningKey([]byte("service-test-key")),
		WithHasher(NewHasher(1000, DefaultEntropy)),
		WithClock(func() time.Time { return now }),
		WithSleep(func(time.Duration) {}),
		WithRefreshTTL(time.Hour),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.Register("alice", "alice@example.com", "Str0ngPass!!"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	login, err := svc.Login("alice", "Str0ngPass!!", "1.2.3.4")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := svc.Refresh(login.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := NewInMemoryRepository()
	svc, err := NewService(repo,
		WithSigningKey([]byte("service-test-key")),
		WithHasher(NewHasher(1000, DefaultEntropy)),
		WithClock(func() time.Time { return now }),
		WithSleep(func(time.Duration) {}),
		WithAccessTTL(15*time.Minute),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.Register("alice", "alice@example.com", "Str0ngPass!!"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	login, err := svc.Login("alice", "Str0ngPass!!", "1.2.3.4")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	claims, err := svc.Verify(login.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "alice" || claims.UserID != 1 {
		t.Fatalf("unexpected claims: %#v", claims)
	}

	now = now.Add(16 * time.Minute)
	if _, err := svc.Verify(login.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAuthorizePermissionSnapshot(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "alice", "alice@example.com", "Str0ngPass!!")
	before, err := env.svc.Login("alice", "Str0ngPass!!", "1.2.3.4")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := env.svc.Authorize(before.AccessToken, PermReadSelf); err != nil {
		t.Fatalf("expected role permission in snapshot: %v", err)
	}
	if _, err := env.svc.Authorize(before.AccessToken, PermReadAny); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	if err := env.svc.GrantPermission("alice", PermReadAny); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	// Already-issued tokens keep their snapshot.
	if _, err := env.svc.Authorize(before.AccessToken, PermReadAny); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("grant leaked into outstanding token: %v", err)
	}
	// Tokens issued after the grant carry it.
	after, err := env.svc.Login("alice", "Str0ngPass!!", "1.2.3.4")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := env.svc.Authorize(after.AccessToken, PermReadAny); err != nil {
		t.Fatalf("expected new token to carry grant: %v", err)
	}
}

func TestAssignRoleExpandsEffectivePermissions(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "alice", "alice@example.com", "Str0ngPass!!")
	if err := env.svc.AssignRole("alice", RoleAdmin); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	login, err := env.svc.Login("alice", "Str0ngPass!!", "1.2.3.4")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := env.svc.Authorize(login.AccessToken, PermUserDelete); err != nil {
		t.Fatalf("expected admin permission: %v", err)
	}
}

func TestAssignRoleUnknownUser(t *testing.T) {
	env := newTestService(t)
	if err := env.svc.AssignRole("ghost", RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := env.svc.GrantPermission("ghost", PermReadAny); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEndToEndAuditTrail(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "alice", "alice@example.com", "Str0ngPass!!")
	login, err := env.svc.Login("alice", "Str0ngPass!!", "1.2.3.4")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := env.svc.Verify(login.AccessToken); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	var trail []string
	for _, ev := range env.svc.AuditEvents() {
		if ev.Username == "alice" && (ev.Action == "register" || ev.Action == "login.success") {
			trail = append(trail, ev.Action)
		}
	}
	if len(trail) != 2 || trail[0] != "register" || trail[1] != "login.success" {
		t.Fatalf("unexpected audit trail: %v", trail)
	}
}

func TestMinDelayPadsEveryExitPath(t *testing.T) {
	env := newTestService(t, WithMinDelay(75*time.Millisecond))
	mustRegister(t, env.svc, "alice", "alice@example.com", "Str0ngPass!!")

	padsAfterRegister := len(*env.slept)
	if padsAfterRegister == 0 {
		t.Fatal("expected registration to pad its response")
	}

	if _, err := env.svc.Login("alice", "wrong", "1.2.3.4"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unexpected login error: %v", err)
	}
	if len(*env.slept) <= padsAfterRegister {
		t.Fatal("expected failed login to pad its response")
	}
	if _, err := env.svc.Login("alice", "Str0ngPass!!", "1.2.3.4"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(*env.slept) <= padsAfterRegister+1 {
		t.Fatal("expected successful login to pad its response")
	}
	for _, d := range *env.slept {
		if d <= 0 || d > 75*time.Millisecond {
			t.Fatalf("pad duration out of range: %v", d)
		}
	}
}
