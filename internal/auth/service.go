package auth

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"sentra.org/internal/audit"
	"sentra.org/internal/obs"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultMinDelay   = 120 * time.Millisecond
)

// Service orchestrates registration, login, refresh, verification, and
// authorization checks. Construct it explicitly with NewService; there is no
// process-wide default instance.
type Service struct {
	repo    Repository
	hasher  *Hasher
	codec   *TokenCodec
	limiter *RateLimiter
	auditor *audit.Log

	now   func() time.Time
	sleep func(time.Duration)

	accessTTL     time.Duration
	refreshTTL    time.Duration
	minDelay      time.Duration
	rotateRefresh bool
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithSleep overrides how the minimum-delay pad waits (useful for tests).
func WithSleep(fn func(time.Duration)) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.sleep = fn
		}
		return nil
	}
}

// WithSigningKey replaces the key loaded from the environment.
func WithSigningKey(key []byte) ServiceOption {
	return func(s *Service) error {
		if len(key) == 0 {
			return fmt.Errorf("%w: empty signing key", ErrInvalidInput)
		}
		s.codec = NewTokenCodec(key)
		return nil
	}
}

// WithHasher replaces the default PBKDF2 hasher.
func WithHasher(h *Hasher) ServiceOption {
	return func(s *Service) error {
		if h != nil {
			s.hasher = h
		}
		return nil
	}
}

// WithRateLimiter replaces the default login limiter.
func WithRateLimiter(l *RateLimiter) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.limiter = l
		}
		return nil
	}
}

// WithAuditLog replaces the default bounded audit log.
func WithAuditLog(l *audit.Log) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.auditor = l
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithMinDelay configures the minimum wall-clock response time for
// registration, login, and refresh. Zero disables the pad.
func WithMinDelay(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d >= 0 {
			s.minDelay = d
		}
		return nil
	}
}

// WithRefreshRotation toggles rotate-on-use for refresh tokens.
func WithRefreshRotation(enabled bool) ServiceOption {
	return func(s *Service) error {
		s.rotateRefresh = enabled
		return nil
	}
}

// NewService constructs the orchestrator with optional configuration.
func NewService(repo Repository, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("%w: nil repository", ErrInvalidInput)
	}
	svc := &Service{
		repo:          repo,
		hasher:        NewHasher(defaultIterations, DefaultEntropy),
		limiter:       NewRateLimiter(defaultBurst, defaultPerSec),
		auditor:       audit.NewLog(0),
		now:           systemNow,
		sleep:         time.Sleep,
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		minDelay:      defaultMinDelay,
		rotateRefresh: true,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if svc.codec == nil {
		svc.codec = NewTokenCodec(SigningKeyFromEnv())
	}
	return svc, nil
}

// Register creates an account. Every exit path is padded to the configured
// minimum duration.
func (s *Service) Register(username, email, password string, roles ...string) (*User, error) {
	defer s.padFrom(time.Now())

	uname := NormalizeUsername(username)
	if uname == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", ErrInvalidInput)
	}
	if !ValidateEmail(email) {
		s.record("register.fail", uname, "invalid email format")
		return nil, fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	if err := EnforcePolicy(password); err != nil {
		s.record("register.fail", uname, "password policy")
		return nil, err
	}
	cred, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	roleSet := map[string]struct{}{RoleUser: {}}
	if len(roles) > 0 {
		roleSet = make(map[string]struct{}, len(roles))
		for _, r := range roles {
			roleSet[strings.TrimSpace(strings.ToLower(r))] = struct{}{}
		}
	}

	user := &User{
		ID:            s.repo.NextID(),
		Username:      uname,
		Email:         strings.ToLower(strings.TrimSpace(email)),
		Credential:    cred,
		Roles:         roleSet,
		Permissions:   make(map[string]struct{}),
		CreatedAt:     s.now(),
		Identity:      Identity{Kind: IdentityLocal},
		RefreshTokens: make(map[string]time.Time),
	}
	if err := s.repo.Add(user); err != nil {
		s.record("register.fail", uname, "duplicate account")
		return nil, err
	}
	obs.AuthRegistrations.Inc()
	s.record("register", uname, "user created")
	return user, nil
}

// Login authenticates a username/password pair. The origin key (for example a
// client IP) scopes rate limiting to the identity+origin pair. Failures are
// indistinguishable to the caller whatever their cause.
func (s *Service) Login(username, password, origin string) (LoginResult, error) {
	defer s.padFrom(time.Now())

	uname := NormalizeUsername(username)
	key := "login:" + uname + ":" + origin
	if !s.limiter.Check(key) {
		obs.AuthFailedLogins.Inc()
		s.record("login.rate_limited", uname, origin)
		return LoginResult{}, ErrInvalidCredentials
	}
	user, ok := s.repo.Get(uname)
	if !ok {
		obs.AuthFailedLogins.Inc()
		s.record("login.fail", uname, "unknown user")
		return LoginResult{}, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.Credential) {
		obs.AuthFailedLogins.Inc()
		s.record("login.fail", uname, "bad password")
		return LoginResult{}, ErrInvalidCredentials
	}

	result, err := s.finishLogin(user)
	if err != nil {
		return LoginResult{}, err
	}
	obs.AuthLogins.Inc()
	s.record("login.success", user.Username, "")
	return result, nil
}

// Refresh exchanges a valid refresh token for a fresh access token. With
// rotation enabled the consumed id is revoked and a new refresh token is
// issued with the configured TTL.
func (s *Service) Refresh(refreshToken string) (LoginResult, error) {
	defer s.padFrom(time.Now())

	rid, embeddedExp, err := s.codec.DecodeRefresh(refreshToken)
	if err != nil {
		s.record("refresh.fail", "", "malformed or unsigned token")
		return LoginResult{}, ErrInvalidToken
	}
	now := s.now()
	if now.After(embeddedExp) {
		s.record("refresh.fail", "", "token expired")
		return LoginResult{}, ErrTokenExpired
	}
	user, ok := s.repo.FindByRefreshID(rid)
	if !ok {
		s.record("refresh.fail", "", "unknown refresh id")
		return LoginResult{}, ErrInvalidToken
	}
	serverExp, ok := user.RefreshTokens[rid]
	if !ok {
		s.record("refresh.fail", user.Username, "refresh id not outstanding")
		return LoginResult{}, ErrInvalidToken
	}
	if now.After(serverExp) {
		delete(user.RefreshTokens, rid)
		_ = s.repo.Update(user)
		s.record("refresh.fail", user.Username, "refresh id expired")
		return LoginResult{}, ErrTokenExpired
	}

	if s.rotateRefresh {
		delete(user.RefreshTokens, rid)
	}
	result, err := s.finishLogin(user)
	if err != nil {
		return LoginResult{}, err
	}
	obs.AuthRefreshes.Inc()
	s.record("refresh", user.Username, "rotated")
	return result, nil
}

// Verify decodes the access token and checks expiry against the current
// clock. It does not consult refresh state: access tokens are bearer-valid
// until natural expiry.
func (s *Service) Verify(accessToken string) (AccessTokenClaims, error) {
	claims, err := s.codec.Decode(accessToken)
	if err != nil {
		return AccessTokenClaims{}, err
	}
	if claims.ExpiresAt < s.now().Unix() {
		return AccessTokenClaims{}, ErrTokenExpired
	}
	return claims, nil
}

// Authorize verifies the token and requires the permission to be present in
// the embedded snapshot. Grants made after issuance do not appear until a
// new token is issued.
func (s *Service) Authorize(accessToken, permission string) (AccessTokenClaims, error) {
	claims, err := s.Verify(accessToken)
	if err != nil {
		return AccessTokenClaims{}, err
	}
	if !slices.Contains(claims.Permissions, permission) {
		s.record("authorize.denied", claims.Username, permission)
		return AccessTokenClaims{}, fmt.Errorf("%w: %s", ErrPermissionDenied, permission)
	}
	return claims, nil
}

// AssignRole adds a role to the live user record. Outstanding tokens are
// unaffected.
func (s *Service) AssignRole(username, role string) error {
	user, ok := s.repo.Get(username)
	if !ok {
		return fmt.Errorf("%w: user %q", ErrNotFound, username)
	}
	user.Roles[strings.TrimSpace(strings.ToLower(role))] = struct{}{}
	if err := s.repo.Update(user); err != nil {
		return err
	}
	s.record("assign_role", user.Username, role)
	return nil
}

// GrantPermission adds a direct permission grant to the live user record.
func (s *Service) GrantPermission(username, permission string) error {
	user, ok := s.repo.Get(username)
	if !ok {
		return fmt.Errorf("%w: user %q", ErrNotFound, username)
	}
	user.Permissions[permission] = struct{}{}
	if err := s.repo.Update(user); err != nil {
		return err
	}
	s.record("grant_permission", user.Username, permission)
	return nil
}

// FederatedLogin signs in (and on first contact registers) an identity
// resolved by an external provider. Password login stays permanently
// disabled for such accounts.
func (s *Service) FederatedLogin(fc FederatedClaims) (LoginResult, error) {
	defer s.padFrom(time.Now())

	if !fc.EmailVerified {
		s.record("login.federated.fail", "", "unverified email")
		return LoginResult{}, ErrInvalidCredentials
	}
	email := strings.ToLower(strings.TrimSpace(fc.Email))
	if !ValidateEmail(email) {
		s.record("login.federated.fail", "", "invalid email")
		return LoginResult{}, ErrInvalidCredentials
	}

	user, ok := s.repo.FindByEmail(email)
	if !ok {
		username := s.deriveUsername(email)
		user = &User{
			ID:          s.repo.NextID(),
			Username:    username,
			Email:       email,
			Credential:  FederatedCredential(),
			Roles:       map[string]struct{}{RoleUser: {}},
			Permissions: make(map[string]struct{}),
			CreatedAt:   s.now(),
			Identity: Identity{
				Kind: IdentityFederated,
				Federated: &FederatedIdentity{
					Provider:    fc.Provider,
					ExternalID:  fc.ExternalID,
					DisplayName: fc.DisplayName,
					AvatarURL:   fc.AvatarURL,
				},
			},
			RefreshTokens: make(map[string]time.Time),
		}
		if err := s.repo.Add(user); err != nil {
			return LoginResult{}, err
		}
		obs.AuthRegistrations.Inc()
		s.record("register.federated", username, fc.Provider)
	}

	result, err := s.finishLogin(user)
	if err != nil {
		return LoginResult{}, err
	}
	obs.AuthLogins.Inc()
	s.record("login.federated", user.Username, fc.Provider)
	return result, nil
}

// AuditEvents returns a snapshot of recent security events.
func (s *Service) AuditEvents() []audit.Event {
	return s.auditor.List()
}

// PasswordStrengthScore surfaces the advisory strength heuristic.
func (s *Service) PasswordStrengthScore(password string) float64 {
	return PasswordStrength(password)
}

// finishLogin stamps last-login, issues the token pair, persists the new
// refresh id, and writes the record back in one Update.
func (s *Service) finishLogin(user *User) (LoginResult, error) {
	now := s.now()
	user.LastLogin = now

	accessToken, claims, err := s.issueAccessToken(user, now)
	if err != nil {
		return LoginResult{}, err
	}
	refreshToken, rid, refreshExp, err := s.issueRefreshToken(now)
	if err != nil {
		return LoginResult{}, err
	}
	user.RefreshTokens[rid] = refreshExp
	if err := s.repo.Update(user); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		Username:     user.Username,
		Roles:        user.RoleNames(),
		ExpiresAt:    time.Unix(claims.ExpiresAt, 0).UTC(),
	}, nil
}

func (s *Service) issueAccessToken(user *User, now time.Time) (string, AccessTokenClaims, error) {
	claims := AccessTokenClaims{
		Subject:     user.Username,
		IssuedAt:    now.Unix(),
		ExpiresAt:   now.Add(s.accessTTL).Unix(),
		Roles:       user.RoleNames(),
		Permissions: user.EffectivePermissions(),
		TokenID:     uuid.NewString(),
		UserID:      user.ID,
		Username:    user.Username,
	}
	token, err := s.codec.Encode(claims)
	if err != nil {
		return "", AccessTokenClaims{}, err
	}
	obs.AuthTokenIssues.Inc()
	return token, claims, nil
}

func (s *Service) issueRefreshToken(now time.Time) (token, rid string, expiresAt time.Time, err error) {
	rid = uuid.NewString()
	expiresAt = now.Add(s.refreshTTL)
	token, err = s.codec.EncodeRefresh(rid, expiresAt)
	return token, rid, expiresAt, err
}

func (s *Service) record(action, username, detail string) {
	s.auditor.Record(audit.Event{
		At:       s.now(),
		Action:   action,
		Username: username,
		Detail:   detail,
	})
}

// padFrom sleeps until at least minDelay of wall-clock time has passed since
// start. Deferred on every operation that must not leak timing differences
// between its failure paths.
func (s *Service) padFrom(start time.Time) {
	if s.minDelay <= 0 {
		return
	}
	if remain := s.minDelay - time.Since(start); remain > 0 {
		s.sleep(remain)
	}
}

func (s *Service) deriveUsername(email string) string {
	base := email
	if i := strings.IndexByte(base, '@'); i >= 0 {
		base = base[:i]
	}
	base = usernameRE.ReplaceAllString(strings.ToLower(base), "")
	if base == "" {
		base = "user"
	}
	candidate := base
	for i := 1; ; i++ {
		if _, taken := s.repo.Get(candidate); !taken {
			return candidate
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}
