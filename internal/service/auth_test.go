package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Mukulsharnagat01/Collegedunia/internal/auth"
	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
	"github.com/Mukulsharnagat01/Collegedunia/internal/event"
	"github.com/Mukulsharnagat01/Collegedunia/internal/repository/memory"
	apperrors "github.com/Mukulsharnagat01/Collegedunia/pkg/errors"
	pkgkafka "github.com/Mukulsharnagat01/Collegedunia/pkg/kafka"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/validator"
)

// --- Fakes ---

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return p.err
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

type mockSessionRegistry struct {
	mock.Mock
}

func (m *mockSessionRegistry) Register(ctx context.Context, s *domain.Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockSessionRegistry) IsValid(ctx context.Context, tokenHash string) (bool, error) {
	args := m.Called(ctx, tokenHash)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRegistry) Revoke(ctx context.Context, tokenHash string) error {
	return m.Called(ctx, tokenHash).Error(0)
}

func (m *mockSessionRegistry) RevokeAllForUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

// --- Fixture ---

type fixture struct {
	svc       *AuthService
	users     *memory.UserRepository
	sessions  *memory.SessionRegistry
	tokens    *auth.TokenIssuer
	publisher *recordingPublisher
}

func testIssuer(t *testing.T, opts ...auth.Option) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(auth.Config{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
		Issuer:        "college-auth-test",
	}, opts...)
	require.NoError(t, err)
	return issuer
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.MinCost
	}
	f := &fixture{
		users:     memory.NewUserRepository(),
		sessions:  memory.NewSessionRegistry(),
		tokens:    testIssuer(t),
		publisher: &recordingPublisher{},
	}
	svc, err := NewAuthService(f.users, f.sessions, f.tokens, event.NewProducer(f.publisher), testLogger(), opts)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) signup(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	res, err := f.svc.Signup(context.Background(), SignupInput{
		Name:     "Jane",
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return res
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.Code(err), "error: %v", err)
}

// --- Construction ---

func TestNewAuthService_InvalidCost(t *testing.T) {
	_, err := NewAuthService(nil, nil, nil, nil, testLogger(), Options{BcryptCost: 99})
	assert.Error(t, err)
}

// --- Signup ---

func TestSignup_Success(t *testing.T) {
	f := newFixture(t, Options{})

	res, err := f.svc.Signup(context.Background(), SignupInput{
		Name:     "  Jane  ",
		Email:    "Jane@X.com",
		Password: "pw123456",
		City:     "Pune",
	})
	require.NoError(t, err)

	assert.Equal(t, "jane@x.com", res.User.Email)
	assert.Equal(t, "Jane", res.User.Name)
	assert.Equal(t, domain.RoleStudent, res.User.Role)
	assert.Equal(t, "Pune", res.User.City)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.NotEqual(t, "pw123456", res.User.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(res.User.PasswordHash), []byte("pw123456")))

	ok, err := f.sessions.IsValid(context.Background(), domain.HashToken(res.RefreshToken))
	require.NoError(t, err)
	assert.True(t, ok)

	claims, err := f.tokens.ParseAccessToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.Subject)
	assert.Equal(t, domain.RoleStudent, claims.Role)

	assert.Equal(t, []string{event.TopicUserSignedUp}, f.publisher.published())
}

func TestSignup_ParentRole(t *testing.T) {
	f := newFixture(t, Options{})
	res, err := f.svc.Signup(context.Background(), SignupInput{
		Name: "Dad", Email: "dad@x.com", Password: "pw", Role: domain.RoleParent,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleParent, res.User.Role)
}

func TestSignup_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input SignupInput
		field string
	}{
		{"missing name", SignupInput{Email: "a@x.com", Password: "pw"}, "name"},
		{"blank name", SignupInput{Name: "   ", Email: "a@x.com", Password: "pw"}, "name"},
		{"missing email", SignupInput{Name: "A", Password: "pw"}, "email"},
		{"bad email", SignupInput{Name: "A", Email: "not-an-email", Password: "pw"}, "email"},
		{"missing password", SignupInput{Name: "A", Email: "a@x.com"}, "password"},
		{"blank password", SignupInput{Name: "A", Email: "a@x.com", Password: "   "}, "password"},
		{"password too long", SignupInput{Name: "A", Email: "a@x.com", Password: string(make([]byte, 73))}, "password"},
		{"admin not self-assignable", SignupInput{Name: "A", Email: "a@x.com", Password: "pw", Role: domain.RoleAdmin}, "role"},
		{"unknown role", SignupInput{Name: "A", Email: "a@x.com", Password: "pw", Role: "dean"}, "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			_, err := f.svc.Signup(context.Background(), tt.input)

			var valErr *validator.ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Contains(t, valErr.Fields(), tt.field)
			assert.Equal(t, apperrors.CodeValidation, apperrors.Code(err))

			_, err = f.users.GetByEmail(context.Background(), "a@x.com")
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
		})
	}
}

func TestSignup_DuplicateEmailCaseInsensitive(t *testing.T) {
	f := newFixture(t, Options{})
	first := f.signup(t, "jane@x.com", "pw1")

	_, err := f.svc.Signup(context.Background(), SignupInput{Name: "Other", Email: "JANE@X.COM", Password: "pw2"})
	assertCode(t, err, apperrors.CodeDuplicateEmail)

	// The original account is untouched.
	got, err := f.users.GetByEmail(context.Background(), "jane@x.com")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, got.ID)
	assert.Equal(t, "Jane", got.Name)
}

func TestSignup_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t, Options{})
	f.publisher.err = errors.New("broker down")

	_, err := f.svc.Signup(context.Background(), SignupInput{Name: "A", Email: "a@x.com", Password: "pw"})
	assert.NoError(t, err)
}

func TestSignup_RegistryFailure(t *testing.T) {
	reg := new(mockSessionRegistry)
	reg.On("Register", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	svc, err := NewAuthService(memory.NewUserRepository(), reg, testIssuer(t), nil, testLogger(), Options{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), SignupInput{Name: "A", Email: "a@x.com", Password: "pw"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInternal, apperrors.Code(err))
	assert.Contains(t, err.Error(), "register session")
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	f := newFixture(t, Options{})
	signed := f.signup(t, "jane@x.com", "pw1")

	res, err := f.svc.Login(context.Background(), LoginInput{Email: "  JANE@x.com", Password: "pw1"})
	require.NoError(t, err)
	assert.Equal(t, signed.User.ID, res.User.ID)
	assert.NotEqual(t, signed.RefreshToken, res.RefreshToken)

	// Both sessions are live and independent.
	for _, tok := range []string{signed.RefreshToken, res.RefreshToken} {
		ok, err := f.sessions.IsValid(context.Background(), domain.HashToken(tok))
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestLogin_InvalidCredentialsIndistinguishable(t *testing.T) {
	f := newFixture(t, Options{})
	f.signup(t, "jane@x.com", "pw1")

	_, wrongPassword := f.svc.Login(context.Background(), LoginInput{Email: "jane@x.com", Password: "nope"})
	_, unknownEmail := f.svc.Login(context.Background(), LoginInput{Email: "ghost@x.com", Password: "nope"})

	assertCode(t, wrongPassword, apperrors.CodeInvalidCredentials)
	assertCode(t, unknownEmail, apperrors.CodeInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, 1, f.sessions.Len())
}

func TestLogin_MissingFields(t *testing.T) {
	f := newFixture(t, Options{})
	for _, in := range []LoginInput{{}, {Email: "a@x.com"}, {Password: "pw"}} {
		_, err := f.svc.Login(context.Background(), in)
		assertCode(t, err, apperrors.CodeValidation)
	}
}

// --- Refresh ---

func TestRefresh_IssuesAccessTokenOnly(t *testing.T) {
	f := newFixture(t, Options{})
	signed := f.signup(t, "jane@x.com", "pw1")

	res, err := f.svc.Refresh(context.Background(), signed.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Empty(t, res.RefreshToken)

	claims, err := f.tokens.ParseAccessToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, signed.User.ID, claims.Subject)

	// Without rotation the same refresh token keeps working.
	_, err = f.svc.Refresh(context.Background(), signed.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_CarriesCurrentRole(t *testing.T) {
	f := newFixture(t, Options{})
	signed := f.signup(t, "jane@x.com", "pw1")

	u, err := f.users.GetByID(context.Background(), signed.User.ID)
	require.NoError(t, err)
	u.Role = domain.RoleParent
	require.NoError(t, f.users.Update(context.Background(), u))

	res, err := f.svc.Refresh(context.Background(), signed.RefreshToken)
	require.NoError(t, err)
	claims, err := f.tokens.ParseAccessToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleParent, claims.Role)
}

func TestRefresh_Rejections(t *testing.T) {
	f := newFixture(t, Options{})
	signed := f.signup(t, "jane@x.com", "pw1")

	forged, _, err := testIssuer(t).IssueRefreshToken(signed.User)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"access token as refresh", signed.AccessToken},
		{"validly signed but never registered", forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Refresh(context.Background(), tt.token)
			assertCode(t, err, apperrors.CodeUnauthenticated)
		})
	}
}

func TestRefresh_Expired(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	users := memory.NewUserRepository()
	sessions := memory.NewSessionRegistry().WithClock(clock)
	tokens := testIssuer(t, auth.WithClock(clock))
	svc, err := NewAuthService(users, sessions, tokens, nil, testLogger(), Options{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	res, err := svc.Signup(context.Background(), SignupInput{Name: "A", Email: "a@x.com", Password: "pw"})
	require.NoError(t, err)

	now = now.Add(7*24*time.Hour + time.Minute)
	_, err = svc.Refresh(context.Background(), res.RefreshToken)
	assertCode(t, err, apperrors.CodeUnauthenticated)
}

func TestRefresh_AfterLogoutFails(t *testing.T) {
	f := newFixture(t, Options{})
	signed := f.signup(t, "jane@x.com", "pw1")

	f.svc.Logout(context.Background(), signed.RefreshToken)

	_, err := f.svc.Refresh(context.Background(), signed.RefreshToken)
	assertCode(t, err, apperrors.CodeUnauthenticated)
}

func TestRefresh_DeletedUser(t *testing.T) {
	f := newFixture(t, Options{})
	signed := f.signup(t, "jane@x.com", "pw1")
	f.users.Delete(signed.User.ID)

	_, err := f.svc.Refresh(context.Background(), signed.RefreshToken)
	assertCode(t, err, apperrors.CodeUnauthenticated)
}

func TestRefresh_RegistryError(t *testing.T) {
	reg := new(mockSessionRegistry)
	reg.On("Register", mock.Anything, mock.Anything).Return(nil)
	reg.On("IsValid", mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
	svc, err := NewAuthService(memory.NewUserRepository(), reg, testIssuer(t), nil, testLogger(), Options{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	res, err := svc.Signup(context.Background(), SignupInput{Name: "A", Email: "a@x.com", Password: "pw"})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), res.RefreshToken)
	assertCode(t, err, apperrors.CodeInternal)
	reg.AssertExpectations(t)
}

func TestRefresh_Rotation(t *testing.T) {
	f := newFixture(t, Options{RotateRefreshTokens: true})
	signed := f.signup(t, "jane@x.com", "pw1")

	res, err := f.svc.Refresh(context.Background(), signed.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, res.RefreshToken)
	assert.NotEqual(t, signed.RefreshToken, res.RefreshToken)
	assert.False(t, res.RefreshExpiresAt.IsZero())

	_, err = f.svc.Refresh(context.Background(), signed.RefreshToken)
	assertCode(t, err, apperrors.CodeUnauthenticated)

	_, err = f.svc.Refresh(context.Background(), res.RefreshToken)
	assert.NoError(t, err)
}

// --- Logout ---

func TestLogout_Tolerant(t *testing.T) {
	f := newFixture(t, Options{})
	signed := f.signup(t, "jane@x.com", "pw1")

	f.svc.Logout(context.Background(), "")
	f.svc.Logout(context.Background(), "garbage")
	f.svc.Logout(context.Background(), signed.RefreshToken)
	f.svc.Logout(context.Background(), signed.RefreshToken)

	assert.Equal(t, 0, f.sessions.Len())
}

func TestLogout_OnlyRevokesOwnSession(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.signup(t, "jane@x.com", "pw1")
	b, err := f.svc.Login(context.Background(), LoginInput{Email: "jane@x.com", Password: "pw1"})
	require.NoError(t, err)

	f.svc.Logout(context.Background(), a.RefreshToken)

	_, err = f.svc.Refresh(context.Background(), b.RefreshToken)
	assert.NoError(t, err)
}

func TestLogin_ConcurrentSessionsAreIndependent(t *testing.T) {
	const logins = 6
	f := newFixture(t, Options{})
	f.signup(t, "jane@x.com", "pw1")

	tokens := make([]string, logins)
	errs := make([]error, logins)
	var wg sync.WaitGroup
	for i := range logins {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Login(context.Background(), LoginInput{Email: "jane@x.com", Password: "pw1"})
			errs[i] = err
			if err == nil {
				tokens[i] = res.RefreshToken
			}
		}()
	}
	wg.Wait()

	distinct := make(map[string]struct{}, logins)
	for i := range logins {
		require.NoError(t, errs[i])
		distinct[tokens[i]] = struct{}{}
	}
	assert.Len(t, distinct, logins)

	f.svc.Logout(context.Background(), tokens[0])

	_, err := f.svc.Refresh(context.Background(), tokens[0])
	assertCode(t, err, apperrors.CodeUnauthenticated)
	for _, tok := range tokens[1:] {
		_, err := f.svc.Refresh(context.Background(), tok)
		assert.NoError(t, err)
	}
}

func TestFailuresAreCounted(t *testing.T) {
	t.Run("signup hash failure", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.svc.bcryptCost = bcrypt.MaxCost + 1
		before := testutil.ToFloat64(authOperations.WithLabelValues("signup", outcomeError))

		_, err := f.svc.Signup(context.Background(), SignupInput{Name: "A", Email: "a@x.com", Password: "pw"})
		require.Error(t, err)
		assert.Equal(t, before+1, testutil.ToFloat64(authOperations.WithLabelValues("signup", outcomeError)))
	})

	t.Run("logout revoke failure", func(t *testing.T) {
		reg := new(mockSessionRegistry)
		reg.On("Revoke", mock.Anything, mock.Anything).Return(errors.New("redis down"))
		svc, err := NewAuthService(memory.NewUserRepository(), reg, testIssuer(t), nil, testLogger(), Options{BcryptCost: bcrypt.MinCost})
		require.NoError(t, err)
		before := testutil.ToFloat64(authOperations.WithLabelValues("logout", outcomeError))

		svc.Logout(context.Background(), "some-refresh-token")

		assert.Equal(t, before+1, testutil.ToFloat64(authOperations.WithLabelValues("logout", outcomeError)))
		reg.AssertExpectations(t)
	})
}

// --- Me / profile ---

func TestMe(t *testing.T) {
	f := newFixture(t, Options{})
	signed := f.signup(t, "jane@x.com", "pw1")

	u, err := f.svc.Me(context.Background(), signed.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@x.com", u.Email)

	f.users.Delete(signed.User.ID)
	_, err = f.svc.Me(context.Background(), signed.User.ID)
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t, Options{})
	signed := f.signup(t, "jane@x.com", "pw1")

	name, city := " Jane Doe ", "Kota"
	u, err := f.svc.UpdateProfile(context.Background(), signed.User.ID, UpdateProfileInput{Name: &name, City: &city})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", u.Name)
	assert.Equal(t, "Kota", u.City)
	assert.Equal(t, domain.RoleStudent, u.Role)

	blank := "  "
	_, err = f.svc.UpdateProfile(context.Background(), signed.User.ID, UpdateProfileInput{Name: &blank})
	assertCode(t, err, apperrors.CodeValidation)
}

// --- ChangePassword ---

func TestChangePassword_RevokesAllSessions(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.signup(t, "jane@x.com", "old-pw")
	b, err := f.svc.Login(context.Background(), LoginInput{Email: "jane@x.com", Password: "old-pw"})
	require.NoError(t, err)

	err = f.svc.ChangePassword(context.Background(), a.User.ID, ChangePasswordInput{
		CurrentPassword: "old-pw",
		NewPassword:     "new-pw",
	})
	require.NoError(t, err)

	for _, tok := range []string{a.RefreshToken, b.RefreshToken} {
		_, err := f.svc.Refresh(context.Background(), tok)
		assertCode(t, err, apperrors.CodeUnauthenticated)
	}

	_, err = f.svc.Login(context.Background(), LoginInput{Email: "jane@x.com", Password: "old-pw"})
	assertCode(t, err, apperrors.CodeInvalidCredentials)
	_, err = f.svc.Login(context.Background(), LoginInput{Email: "jane@x.com", Password: "new-pw"})
	assert.NoError(t, err)

	assert.Contains(t, f.publisher.published(), event.TopicUserSessionsRevoked)
}

func TestChangePassword_Rejections(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.signup(t, "jane@x.com", "old-pw")

	tests := []ChangePasswordInput{
		{CurrentPassword: "wrong", NewPassword: "new-pw"},
		{CurrentPassword: "old-pw", NewPassword: "old-pw"},
		{CurrentPassword: "old-pw", NewPassword: ""},
		{NewPassword: "new-pw"},
	}
	for _, in := range tests {
		err := f.svc.ChangePassword(context.Background(), a.User.ID, in)
		assertCode(t, err, apperrors.CodeValidation)
	}

	_, err := f.svc.Refresh(context.Background(), a.RefreshToken)
	assert.NoError(t, err)
}
